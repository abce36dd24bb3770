package vision

import (
	"image"
	"image/color"
	"math"
)

// Warp applies the inverse homography invH (mapping destination pixels
// back to source coordinates) to produce an outSize×outSize RGBA image,
// bilinearly interpolating all three colour channels. Destination pixels
// whose source coordinate falls outside img's bounds are filled with the
// nearest clamped sample rather than left blank.
func Warp(img image.Image, invH Matrix3, outSize int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, outSize, outSize))
	b := img.Bounds()

	for dy := 0; dy < outSize; dy++ {
		for dx := 0; dx < outSize; dx++ {
			src := invH.Apply(Point{X: float64(dx) + 0.5, Y: float64(dy) + 0.5})
			r, g, bl, a := bilinearSample(img, b, src.X, src.Y)
			out.SetRGBA(dx, dy, color.RGBA{R: r, G: g, B: bl, A: a})
		}
	}
	return out
}

// bilinearSample samples img at floating-point (x,y), clamping
// out-of-range coordinates to the nearest edge pixel rather than
// returning zero.
func bilinearSample(img image.Image, b image.Rectangle, x, y float64) (r, g, bl, a uint8) {
	clampX := func(v int) int {
		if v < b.Min.X {
			return b.Min.X
		}
		if v >= b.Max.X {
			return b.Max.X - 1
		}
		return v
	}
	clampY := func(v int) int {
		if v < b.Min.Y {
			return b.Min.Y
		}
		if v >= b.Max.Y {
			return b.Max.Y - 1
		}
		return v
	}

	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	sample := func(px, py int) (float64, float64, float64, float64) {
		cr, cg, cb, ca := img.At(clampX(px), clampY(py)).RGBA()
		return float64(cr >> 8), float64(cg >> 8), float64(cb >> 8), float64(ca >> 8)
	}

	r00, g00, b00, a00 := sample(x0, y0)
	r10, g10, b10, a10 := sample(x0+1, y0)
	r01, g01, b01, a01 := sample(x0, y0+1)
	r11, g11, b11, a11 := sample(x0+1, y0+1)

	lerp := func(v00, v10, v01, v11 float64) float64 {
		top := v00 + (v10-v00)*fx
		bot := v01 + (v11-v01)*fx
		return top + (bot-top)*fy
	}

	return uint8(clamp255(lerp(r00, r10, r01, r11))),
		uint8(clamp255(lerp(g00, g10, g01, g11))),
		uint8(clamp255(lerp(b00, b10, b01, b11))),
		uint8(clamp255(lerp(a00, a10, a01, a11)))
}

func clamp255(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
