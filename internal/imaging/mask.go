package imaging

import (
	"crypto/rand"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"

	"photovault/internal/domain"
)

const (
	// pixelateBlocks is the target block count along the larger dimension
	// of a pixelated region.
	pixelateBlocks = 8
	// pixelateSaltEvery injects one random salt cell per this many cells
	// of the small grid, so identical inputs don't pixelate identically.
	pixelateSaltEvery = 7

	blurRadius = 6
	blurRounds = 3
)

// ApplyMasks applies one destructive pixel transform to every selected
// face region of img and returns a new image of identical dimensions.
//
// Only regions with IsSelected are processed. When several modes are
// supplied, only the first is applied; that is documented policy, not a
// bug. An empty selection or an empty/none mode list is an identity
// operation and still succeeds. The transform is one-way: callers that
// persist the result overwrite the photo's previous content.
func ApplyMasks(img image.Image, faces []domain.FaceRegion, modes []domain.MaskMode) (image.Image, error) {
	dst := toRGBA(img)

	mode := domain.MaskModeNone
	if len(modes) > 0 {
		mode = modes[0]
	}
	if mode == domain.MaskModeNone {
		return dst, nil
	}
	if !domain.ValidMaskMode(mode) {
		return nil, domain.NewVaultError("ApplyMasks", domain.ErrInvalidInput,
			fmt.Sprintf("unknown mask mode %q", mode))
	}

	for _, f := range faces {
		if !f.IsSelected {
			continue
		}
		region := clampRegion(f.Bounds(), dst.Bounds())
		var err error
		switch mode {
		case domain.MaskModeBlackout:
			blackout(dst, region)
		case domain.MaskModePixelate:
			err = pixelate(dst, region)
		case domain.MaskModeBlur:
			blurRegion(dst, region, blurRadius, blurRounds)
		case domain.MaskModeNoise:
			err = noise(dst, region)
		}
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// clampRegion coerces r into bounds. A rectangle entirely outside bounds
// collapses to a 1×1 region at the nearest edge; otherwise each edge is
// clamped into the image and both sides are forced to at least one pixel,
// so no transform ever draws a zero-area or out-of-range rectangle.
func clampRegion(r, bounds image.Rectangle) image.Rectangle {
	clamp := func(v, lo, hi int) int {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}

	if !r.Overlaps(bounds) {
		x := clamp(r.Min.X, bounds.Min.X, bounds.Max.X-1)
		y := clamp(r.Min.Y, bounds.Min.Y, bounds.Max.Y-1)
		return image.Rect(x, y, x+1, y+1)
	}

	out := r.Intersect(bounds)
	if out.Dx() < 1 {
		out.Max.X = clamp(out.Min.X+1, bounds.Min.X, bounds.Max.X)
		out.Min.X = out.Max.X - 1
	}
	if out.Dy() < 1 {
		out.Max.Y = clamp(out.Min.Y+1, bounds.Min.Y, bounds.Max.Y)
		out.Min.Y = out.Max.Y - 1
	}
	return out
}

// blackout fills the region with a single opaque solid color.
func blackout(dst *image.RGBA, region image.Rectangle) {
	draw.Draw(dst, region, image.NewUniform(color.RGBA{A: 255}), image.Point{}, draw.Src)
}

// pixelate downscales the region to a small block grid, salts a few cells
// with random gray values, then upscales back with no smoothing, producing
// visible square blocks.
func pixelate(dst *image.RGBA, region image.Rectangle) error {
	w, h := region.Dx(), region.Dy()

	var gw, gh int
	if w >= h {
		gw = pixelateBlocks
		gh = h * pixelateBlocks / w
	} else {
		gh = pixelateBlocks
		gw = w * pixelateBlocks / h
	}
	if gw < 1 {
		gw = 1
	}
	if gh < 1 {
		gh = 1
	}

	small := image.NewRGBA(image.Rect(0, 0, gw, gh))
	xdraw.ApproxBiLinear.Scale(small, small.Bounds(), dst, region, xdraw.Src, nil)

	if err := saltGrid(small); err != nil {
		return err
	}

	// NearestNeighbor keeps the hard block edges on the way back up.
	xdraw.NearestNeighbor.Scale(dst, region, small, small.Bounds(), xdraw.Src, nil)
	return nil
}

// saltGrid overwrites roughly one in pixelateSaltEvery cells with a random
// opaque gray.
func saltGrid(grid *image.RGBA) error {
	cells := grid.Bounds().Dx() * grid.Bounds().Dy()
	if cells < pixelateSaltEvery {
		return nil
	}
	buf := make([]byte, cells*2) // position selector + gray value per candidate
	if _, err := rand.Read(buf); err != nil {
		return domain.NewVaultError("pixelate", domain.ErrFileSystem, "read random: "+err.Error())
	}
	b := grid.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sel, gray := buf[i*2], buf[i*2+1]
			i++
			if int(sel)%pixelateSaltEvery == 0 {
				grid.SetRGBA(x, y, color.RGBA{R: gray, G: gray, B: gray, A: 255})
			}
		}
	}
	return nil
}

// noise overwrites every pixel in the region with cryptographically random
// color values, fully destroying the original content.
func noise(dst *image.RGBA, region image.Rectangle) error {
	w, h := region.Dx(), region.Dy()
	buf := make([]byte, w*h*3)
	if _, err := rand.Read(buf); err != nil {
		return domain.NewVaultError("noise", domain.ErrFileSystem, "read random: "+err.Error())
	}
	i := 0
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			dst.SetRGBA(x, y, color.RGBA{R: buf[i], G: buf[i+1], B: buf[i+2], A: 255})
			i += 3
		}
	}
	return nil
}
