package vision

import (
	"image"
	"math"
	"sort"

	"github.com/weiqilab/katacore/internal/board"
)

const (
	neighborhoodWindow  = 3
	discRadiusFraction  = 0.35
	edgeMarginFraction  = 0.10
	minSpread           = 5.0
	minBoardGapFraction = 0.15
)

// gridPoint maps a zero-based (row,col) intersection to a pixel
// coordinate in a size×size image, either evenly spaced or bilinearly
// parameterised from an inner quad if corners is non-nil.
func gridPoint(row, col, boardSize int, size float64, corners *Corners) Point {
	u := float64(col) / float64(boardSize-1)
	v := float64(row) / float64(boardSize-1)
	if corners == nil {
		return Point{X: u * size, Y: v * size}
	}
	top := lerpPoint(corners.TL, corners.TR, u)
	bottom := lerpPoint(corners.BL, corners.BR, u)
	return lerpPoint(top, bottom, v)
}

func lerpPoint(a, b Point, t float64) Point {
	return Point{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t}
}

// sampleDisc computes the mean and variance of grayscale intensity in a
// disc of the given radius centred at p.
func sampleDisc(gray *image.Gray, p Point, radius float64) (mean, variance float64) {
	b := gray.Bounds()
	r := int(math.Ceil(radius))
	var sum, sumSq float64
	var n int
	cx, cy := int(p.X), int(p.Y)
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if float64(dx*dx+dy*dy) > radius*radius {
				continue
			}
			x, y := cx+dx, cy+dy
			if x < b.Min.X || y < b.Min.Y || x >= b.Max.X || y >= b.Max.Y {
				continue
			}
			v := float64(gray.GrayAt(x, y).Y)
			sum += v
			sumSq += v * v
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	mean = sum / float64(n)
	variance = sumSq/float64(n) - mean*mean
	return mean, variance
}

// localMedian returns the median brightness within a (2*window+1)-wide
// grid-index neighbourhood of (row,col), clipped to the board.
func localMedian(brightness []float64, boardSize, row, col, window int) float64 {
	var vals []float64
	for dr := -window; dr <= window; dr++ {
		for dc := -window; dc <= window; dc++ {
			r, c := row+dr, col+dc
			if r < 0 || c < 0 || r >= boardSize || c >= boardSize {
				continue
			}
			vals = append(vals, brightness[r*boardSize+c])
		}
	}
	sort.Float64s(vals)
	return vals[len(vals)/2]
}

func medianOf(v []float64) float64 {
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	if len(s) == 0 {
		return 0
	}
	return s[len(s)/2]
}

func isOuterRing(row, col, boardSize int) bool {
	return row == 0 || col == 0 || row == boardSize-1 || col == boardSize-1
}

// refineCentroidsWithHints replaces the k-means centroids with the mean
// relative value of hinted points for any class that has at least one
// hint, falling back to the k-means centroid otherwise.
func refineCentroidsWithHints(relative []float64, boardSize int, hints map[board.Coord]board.Stone, kmeansCentroids [3]float64) (black, boardC, white float64) {
	black, boardC, white = kmeansCentroids[0], kmeansCentroids[1], kmeansCentroids[2]
	var blackSum, boardSum, whiteSum float64
	var blackN, boardN, whiteN int
	for c, color := range hints {
		if c.Col < 0 || c.Row < 0 || c.Col >= boardSize || c.Row >= boardSize {
			continue
		}
		idx := c.Row*boardSize + c.Col
		switch color {
		case board.Black:
			blackSum += relative[idx]
			blackN++
		case board.White:
			whiteSum += relative[idx]
			whiteN++
		case board.Empty:
			boardSum += relative[idx]
			boardN++
		}
	}
	if blackN > 0 {
		black = blackSum / float64(blackN)
	}
	if boardN > 0 {
		boardC = boardSum / float64(boardN)
	}
	if whiteN > 0 {
		white = whiteSum / float64(whiteN)
	}
	return black, boardC, white
}

// ClassifyStones samples every grid intersection of a warped board image
// and classifies it as black, white, or empty by 1-D k-means clustering
// of each point's local-relative brightness, with caller-supplied
// calibration hints taking precedence over the clustering result
// entirely — a hinted point always returns exactly the hinted value,
// bypassing the variance gate rather than being subject to it.
func ClassifyStones(warped image.Image, boardSize int, gridCorners *Corners, hints []Hint) []Stone {
	gray := Grayscale(warped)
	size := float64(gray.Bounds().Dx())
	cellSize := size / float64(boardSize-1)
	n := boardSize * boardSize

	brightness := make([]float64, n)
	variance := make([]float64, n)
	for row := 0; row < boardSize; row++ {
		for col := 0; col < boardSize; col++ {
			idx := row*boardSize + col
			p := gridPoint(row, col, boardSize, size, gridCorners)
			mean, v := sampleDisc(gray, p, discRadiusFraction*cellSize)
			brightness[idx] = mean
			variance[idx] = v
		}
	}

	relative := make([]float64, n)
	for row := 0; row < boardSize; row++ {
		for col := 0; col < boardSize; col++ {
			idx := row*boardSize + col
			relative[idx] = brightness[idx] - localMedian(brightness, boardSize, row, col, neighborhoodWindow)
		}
	}

	hintMap := make(map[board.Coord]board.Stone, len(hints))
	for _, h := range hints {
		hintMap[h.Coord] = h.Color
	}

	kmeansCentroids := kmeans3(relative)
	black, boardC, white := refineCentroidsWithHints(relative, boardSize, hintMap, kmeansCentroids)

	blackBoundary := (black + boardC) / 2
	whiteBoundary := (boardC + white) / 2
	spread := white - black
	hasBlack := spread > minSpread && (boardC-black) > minBoardGapFraction*spread
	hasWhite := spread > minSpread && (white-boardC) > minBoardGapFraction*spread

	medianVar := medianOf(variance)

	var stones []Stone
	for row := 0; row < boardSize; row++ {
		for col := 0; col < boardSize; col++ {
			idx := row*boardSize + col
			c := board.Coord{Col: col, Row: row}

			if hv, ok := hintMap[c]; ok {
				if hv != board.Empty {
					stones = append(stones, Stone{Coord: c, Color: hv})
				}
				continue
			}

			edgeMargin := 0.0
			if isOuterRing(row, col, boardSize) {
				edgeMargin = edgeMarginFraction * spread
			}
			rel := relative[idx]
			varOK := variance[idx] <= 3*medianVar
			extreme := rel < black-0.1*spread || rel > white+0.1*spread

			switch {
			case hasBlack && rel < blackBoundary-edgeMargin && (varOK || extreme):
				stones = append(stones, Stone{Coord: c, Color: board.Black})
			case hasWhite && rel > whiteBoundary+edgeMargin && (varOK || extreme):
				stones = append(stones, Stone{Coord: c, Color: board.White})
			}
		}
	}
	return stones
}
