package render

import "image"

// multiply composites src onto dst inside r using the multiply blend mode.
// Both images hold premultiplied RGBA of the same size.
func multiply(dst, src *image.RGBA, r image.Rectangle) {
	r = r.Intersect(dst.Bounds()).Intersect(src.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			si := src.PixOffset(x, y)
			sa := float64(src.Pix[si+3]) / 255
			if sa == 0 {
				continue
			}
			di := dst.PixOffset(x, y)
			da := float64(dst.Pix[di+3]) / 255
			for k := 0; k < 3; k++ {
				cs := float64(src.Pix[si+k]) / 255
				cd := float64(dst.Pix[di+k]) / 255
				co := cs*(1-da) + cd*(1-sa) + cs*cd
				dst.Pix[di+k] = uint8(clamp(co, 0, 1)*255 + 0.5)
			}
			ao := sa + da - sa*da
			dst.Pix[di+3] = uint8(clamp(ao, 0, 1)*255 + 0.5)
		}
	}
}
