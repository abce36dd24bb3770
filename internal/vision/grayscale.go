package vision

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Grayscale converts img to single-channel intensity using the standard
// luma weighting, matching image/color.GrayModel's own conversion so
// downstream sampling is consistent with Go's built-in decoders.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}

// Resize scales img to w×h using bilinear resampling. Reuses
// golang.org/x/image/draw's BiLinear scaler rather than re-deriving
// bilinear weights a second time alongside the perspective warper.
func Resize(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// channelSaturation returns the HSV-style saturation (max-min)/max of one
// pixel's RGB channels, 0 when max is 0, plus the brightness (max channel,
// 0-255 scale).
func channelSaturation(c color.Color) (saturation, brightness float64) {
	r, g, b, _ := c.RGBA()
	// RGBA() returns 16-bit-scaled components; reduce to 8-bit.
	r8, g8, b8 := float64(r>>8), float64(g>>8), float64(b>>8)
	max := r8
	if g8 > max {
		max = g8
	}
	if b8 > max {
		max = b8
	}
	min := r8
	if g8 < min {
		min = g8
	}
	if b8 < min {
		min = b8
	}
	if max == 0 {
		return 0, 0
	}
	return (max - min) / max, max
}

// SaturationMask returns a boundary-ready boolean mask of pixels whose
// saturation exceeds satThresh and whose brightness falls strictly
// between brightLow and brightHigh, sized w×h in row-major order.
func SaturationMask(img image.Image, satThresh, brightLow, brightHigh float64) (mask []bool, w, h int) {
	b := img.Bounds()
	w, h = b.Dx(), b.Dy()
	mask = make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sat, bright := channelSaturation(img.At(b.Min.X+x, b.Min.Y+y))
			mask[y*w+x] = sat > satThresh && bright > brightLow && bright < brightHigh
		}
	}
	return mask, w, h
}

// Dilate grows mask by a square structuring element of the given radius:
// a pixel becomes true if any pixel within [-radius,radius] on each axis
// is true in the input. Used to fill the interior holes stones leave in
// the board's saturation mask.
func Dilate(mask []bool, w, h, radius int) []bool {
	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask[y*w+x] {
				out[y*w+x] = true
				continue
			}
			found := false
			for dy := -radius; dy <= radius && !found; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					if mask[ny*w+nx] {
						found = true
						break
					}
				}
			}
			out[y*w+x] = found
		}
	}
	return out
}
