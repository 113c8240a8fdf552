// Package imaging decodes, re-encodes, scales, and destructively masks
// photo pixel data. All geometry is absolute pixels in source-image space.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"

	"photovault/internal/domain"
)

// Decode parses an encoded photo (JPEG or PNG).
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Encode re-encodes img into the requested format. An unimplemented format
// fails explicitly with ErrExportFailed rather than silently falling back
// to another codec.
func Encode(img image.Image, format domain.ExportFormat, jpegQuality int) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case domain.ExportJPEG:
		if jpegQuality < 1 || jpegQuality > 100 {
			jpegQuality = jpeg.DefaultQuality
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, domain.NewVaultError("Encode", domain.ErrExportFailed, err.Error())
		}
	case domain.ExportPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, domain.NewVaultError("Encode", domain.ErrExportFailed, err.Error())
		}
	case domain.ExportHEIC:
		return nil, domain.NewVaultError("Encode", domain.ErrExportFailed, "HEIC export not implemented")
	default:
		return nil, domain.NewVaultError("Encode", domain.ErrExportFailed,
			fmt.Sprintf("unsupported format %q", format))
	}
	return buf.Bytes(), nil
}

// Thumbnail scales img down so its larger dimension equals maxDim,
// preserving aspect ratio. Images already within bounds are returned as a
// copy at original size.
func Thumbnail(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return toRGBA(img)
	}
	if w <= maxDim && h <= maxDim {
		return toRGBA(img)
	}

	var tw, th int
	if w >= h {
		tw = maxDim
		th = h * maxDim / w
	} else {
		th = maxDim
		tw = w * maxDim / h
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

// toRGBA copies img into a freshly allocated RGBA buffer anchored at the
// origin.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
