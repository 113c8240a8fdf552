package imaging

import "image"

// blurRegion applies a separable box blur to the region, repeated rounds
// times. Three box passes approximate a Gaussian closely enough that the
// underlying features are unrecoverable at this radius; the fixed kernel
// keeps the mask non-reversible without storing parameters.
func blurRegion(dst *image.RGBA, region image.Rectangle, radius, rounds int) {
	if radius < 1 || region.Dx() < 1 || region.Dy() < 1 {
		return
	}
	tmp := image.NewRGBA(region)
	for r := 0; r < rounds; r++ {
		boxBlurHorizontal(tmp, dst, region, radius)
		boxBlurVertical(dst, tmp, region, radius)
	}
}

// boxBlurHorizontal writes a horizontally averaged copy of src's region
// into dst using a sliding window sum.
func boxBlurHorizontal(dst, src *image.RGBA, region image.Rectangle, radius int) {
	window := 2*radius + 1
	for y := region.Min.Y; y < region.Max.Y; y++ {
		var sr, sg, sb, sa int
		// Prime the window with the clamped leading edge.
		for i := -radius; i <= radius; i++ {
			x := clampInt(region.Min.X+i, region.Min.X, region.Max.X-1)
			r, g, b, a := rgbaAt(src, x, y)
			sr += r
			sg += g
			sb += b
			sa += a
		}
		for x := region.Min.X; x < region.Max.X; x++ {
			setRGBA(dst, x, y, sr/window, sg/window, sb/window, sa/window)

			leave := clampInt(x-radius, region.Min.X, region.Max.X-1)
			enter := clampInt(x+radius+1, region.Min.X, region.Max.X-1)
			lr, lg, lb, la := rgbaAt(src, leave, y)
			er, eg, eb, ea := rgbaAt(src, enter, y)
			sr += er - lr
			sg += eg - lg
			sb += eb - lb
			sa += ea - la
		}
	}
}

// boxBlurVertical writes a vertically averaged copy of src's region into
// dst.
func boxBlurVertical(dst, src *image.RGBA, region image.Rectangle, radius int) {
	window := 2*radius + 1
	for x := region.Min.X; x < region.Max.X; x++ {
		var sr, sg, sb, sa int
		for i := -radius; i <= radius; i++ {
			y := clampInt(region.Min.Y+i, region.Min.Y, region.Max.Y-1)
			r, g, b, a := rgbaAt(src, x, y)
			sr += r
			sg += g
			sb += b
			sa += a
		}
		for y := region.Min.Y; y < region.Max.Y; y++ {
			setRGBA(dst, x, y, sr/window, sg/window, sb/window, sa/window)

			leave := clampInt(y-radius, region.Min.Y, region.Max.Y-1)
			enter := clampInt(y+radius+1, region.Min.Y, region.Max.Y-1)
			lr, lg, lb, la := rgbaAt(src, x, leave)
			er, eg, eb, ea := rgbaAt(src, x, enter)
			sr += er - lr
			sg += eg - lg
			sb += eb - lb
			sa += ea - la
		}
	}
}

func rgbaAt(img *image.RGBA, x, y int) (r, g, b, a int) {
	i := img.PixOffset(x, y)
	p := img.Pix[i : i+4 : i+4]
	return int(p[0]), int(p[1]), int(p[2]), int(p[3])
}

func setRGBA(img *image.RGBA, x, y, r, g, b, a int) {
	i := img.PixOffset(x, y)
	p := img.Pix[i : i+4 : i+4]
	p[0], p[1], p[2], p[3] = uint8(r), uint8(g), uint8(b), uint8(a)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
