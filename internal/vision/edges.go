package vision

import (
	"image"
	"math"
)

// sobelX/sobelY are the standard 3x3 Sobel kernels.
var sobelX = [3][3]float64{{-1, 0, 1}, {-2, 0, 2}, {-1, 0, 1}}
var sobelY = [3][3]float64{{-1, -2, -1}, {0, 0, 0}, {1, 2, 1}}

// GradientMagnitude runs a Sobel filter over a grayscale image and returns
// the per-pixel edge magnitude, row-major, same dimensions as gray.
func GradientMagnitude(gray *image.Gray) (mag []float64, w, h int) {
	b := gray.Bounds()
	w, h = b.Dx(), b.Dy()
	mag = make([]float64, w*h)

	at := func(x, y int) float64 {
		if x < 0 {
			x = 0
		}
		if x >= w {
			x = w - 1
		}
		if y < 0 {
			y = 0
		}
		if y >= h {
			y = h - 1
		}
		return float64(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var gx, gy float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					v := at(x+kx, y+ky)
					gx += sobelX[ky+1][kx+1] * v
					gy += sobelY[ky+1][kx+1] * v
				}
			}
			mag[y*w+x] = math.Hypot(gx, gy)
		}
	}
	return mag, w, h
}

// Line is one detected line in the Hough accumulator's rho/theta
// parameterisation: x*cos(theta) + y*sin(theta) = rho.
type Line struct {
	Rho   float64
	Theta float64
	Votes int
}

// HoughLines runs a classic rho/theta line accumulator over an edge
// magnitude map, keeping pixels above edgeThresh as votes. Returns the
// topN lines by vote count, used as a fallback board-boundary detector
// when the saturation-mask boundary walk fails to find a usable quad.
func HoughLines(mag []float64, w, h int, edgeThresh float64, topN int) []Line {
	diag := math.Hypot(float64(w), float64(h))
	const thetaSteps = 180
	rhoSteps := int(2*diag) + 1

	acc := make([]int, thetaSteps*rhoSteps)
	cosT := make([]float64, thetaSteps)
	sinT := make([]float64, thetaSteps)
	for t := 0; t < thetaSteps; t++ {
		theta := math.Pi * float64(t) / float64(thetaSteps)
		cosT[t] = math.Cos(theta)
		sinT[t] = math.Sin(theta)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mag[y*w+x] <= edgeThresh {
				continue
			}
			for t := 0; t < thetaSteps; t++ {
				rho := float64(x)*cosT[t] + float64(y)*sinT[t]
				ri := int(rho+diag) % rhoSteps
				if ri < 0 {
					ri += rhoSteps
				}
				acc[t*rhoSteps+ri]++
			}
		}
	}

	lines := make([]Line, 0, topN)
	for t := 0; t < thetaSteps; t++ {
		for ri := 0; ri < rhoSteps; ri++ {
			v := acc[t*rhoSteps+ri]
			if v == 0 {
				continue
			}
			lines = append(lines, Line{
				Rho:   float64(ri) - diag,
				Theta: math.Pi * float64(t) / float64(thetaSteps),
				Votes: v,
			})
		}
	}
	// Partial selection sort for the top N; the accumulator is sparse
	// enough in practice that a full sort would be wasted work.
	for i := 0; i < len(lines) && i < topN; i++ {
		best := i
		for j := i + 1; j < len(lines); j++ {
			if lines[j].Votes > lines[best].Votes {
				best = j
			}
		}
		lines[i], lines[best] = lines[best], lines[i]
	}
	if len(lines) > topN {
		lines = lines[:topN]
	}
	return lines
}
