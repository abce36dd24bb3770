package vision

import (
	"errors"
	"image"
	"math"
	"sort"
)

// ErrNoBoard is returned when the saturation-mask boundary walk cannot
// find a usable quadrilateral.
var ErrNoBoard = errors.New("vision: no board quadrilateral found")

const (
	satThreshold    = 0.1
	brightLow       = 35.0
	brightHigh      = 235.0
	dilateRadius    = 5
	minBoundaryPix  = 20
	minAreaFraction = 0.05
)

// DetectBoard finds the board quadrilateral by walking the boundary of
// the dilated saturation mask and selecting extreme points along the
// x+y / x-y diagonals, per the standard 4-point board-detection recipe:
// TL minimises x+y, BR maximises x+y, TR maximises x-y, BL minimises
// x-y.
func DetectBoard(img image.Image) (Corners, bool, error) {
	mask, w, h := SaturationMask(img, satThreshold, brightLow, brightHigh)
	mask = Dilate(mask, w, h, dilateRadius)

	boundary := boundaryPixels(mask, w, h)
	if len(boundary) < minBoundaryPix {
		return Corners{}, false, nil
	}

	c, ok := cornersFromBoundary(boundary)
	if !ok {
		return Corners{}, false, nil
	}

	area := quadArea(c)
	if area < minAreaFraction*float64(w*h) {
		return Corners{}, false, nil
	}
	if !isConvex(c) {
		return Corners{}, false, nil
	}

	return orderCorners(c), true, nil
}

// DetectBoardByHough is a fallback detector for frames where the
// saturation-mask boundary walk finds too few pixels (low-contrast
// lighting, a board edge occluded by shadow): it takes the 32 strongest
// Hough lines, splits them into horizontal and vertical, and intersects
// the outermost line of each orientation (lowest and highest rho) to
// recover a quad. Returns false rather than an error when fewer than two
// lines of either orientation are found or the intersections fail.
func DetectBoardByHough(img image.Image) (Corners, bool) {
	gray := Grayscale(img)
	mag, w, h := GradientMagnitude(gray)

	var maxMag float64
	for _, m := range mag {
		if m > maxMag {
			maxMag = m
		}
	}
	if maxMag == 0 {
		return Corners{}, false
	}

	lines := HoughLines(mag, w, h, 0.3*maxMag, 32)
	if len(lines) < 4 {
		return Corners{}, false
	}

	horiz, vert := splitByOrientation(lines)
	if len(horiz) < 2 || len(vert) < 2 {
		return Corners{}, false
	}
	sort.Slice(horiz, func(i, j int) bool { return horiz[i].Rho < horiz[j].Rho })
	sort.Slice(vert, func(i, j int) bool { return vert[i].Rho < vert[j].Rho })

	top, bottom := horiz[0], horiz[len(horiz)-1]
	left, right := vert[0], vert[len(vert)-1]

	tl, ok1 := intersectLines(top, left)
	tr, ok2 := intersectLines(top, right)
	br, ok3 := intersectLines(bottom, right)
	bl, ok4 := intersectLines(bottom, left)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Corners{}, false
	}

	return orderCorners([4]Point{tl, tr, br, bl}), true
}

func splitByOrientation(lines []Line) (horiz, vert []Line) {
	for _, l := range lines {
		deg := l.Theta * 180 / math.Pi
		switch {
		case deg < 45 || deg > 135:
			vert = append(vert, l)
		default:
			horiz = append(horiz, l)
		}
	}
	return horiz, vert
}

func intersectLines(a, b Line) (Point, bool) {
	ca, sa := math.Cos(a.Theta), math.Sin(a.Theta)
	cb, sb := math.Cos(b.Theta), math.Sin(b.Theta)
	det := ca*sb - sa*cb
	if math.Abs(det) < 1e-9 {
		return Point{}, false
	}
	x := (a.Rho*sb - b.Rho*sa) / det
	y := (ca*b.Rho - cb*a.Rho) / det
	return Point{X: x, Y: y}, true
}

// boundaryPixels returns the (x,y) points of every mask pixel whose
// 4-neighbourhood is not entirely inside the mask.
func boundaryPixels(mask []bool, w, h int) []Point {
	var out []Point
	at := func(x, y int) bool {
		if x < 0 || x >= w || y < 0 || y >= h {
			return false
		}
		return mask[y*w+x]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !mask[y*w+x] {
				continue
			}
			if at(x-1, y) && at(x+1, y) && at(x, y-1) && at(x, y+1) {
				continue
			}
			out = append(out, Point{X: float64(x), Y: float64(y)})
		}
	}
	return out
}

// cornersFromBoundary picks the four extreme boundary points: TL (min
// x+y), BR (max x+y), TR (max x-y), BL (min x-y).
func cornersFromBoundary(pts []Point) ([4]Point, bool) {
	if len(pts) == 0 {
		return [4]Point{}, false
	}
	tl, br, tr, bl := pts[0], pts[0], pts[0], pts[0]
	for _, p := range pts {
		if p.X+p.Y < tl.X+tl.Y {
			tl = p
		}
		if p.X+p.Y > br.X+br.Y {
			br = p
		}
		if p.X-p.Y > tr.X-tr.Y {
			tr = p
		}
		if p.X-p.Y < bl.X-bl.Y {
			bl = p
		}
	}
	return [4]Point{tl, tr, br, bl}, true
}

func quadArea(c [4]Point) float64 {
	// Shoelace formula over TL,TR,BR,BL.
	pts := c
	sum := 0.0
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(sum) / 2
}

func isConvex(c [4]Point) bool {
	pts := c
	sign := 0
	for i := 0; i < 4; i++ {
		a := pts[i]
		b := pts[(i+1)%4]
		cpt := pts[(i+2)%4]
		cross := (b.X-a.X)*(cpt.Y-a.Y) - (b.Y-a.Y)*(cpt.X-a.X)
		s := 0
		switch {
		case cross > 0:
			s = 1
		case cross < 0:
			s = -1
		default:
			continue
		}
		if sign == 0 {
			sign = s
		} else if sign != s {
			return false
		}
	}
	return true
}

// orderCorners re-derives TL,TR,BR,BL by angle around the centroid,
// breaking ties with minimum-sum-of-coordinates as the TL anchor, so the
// result is stable regardless of the input order.
func orderCorners(c [4]Point) Corners {
	cx, cy := 0.0, 0.0
	for _, p := range c {
		cx += p.X
		cy += p.Y
	}
	cx /= 4
	cy /= 4

	type angled struct {
		p   Point
		ang float64
	}
	pts := make([]angled, 4)
	for i, p := range c {
		pts[i] = angled{p, math.Atan2(p.Y-cy, p.X-cx)}
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].ang < pts[j].ang })

	anchor := 0
	best := pts[0].p.X + pts[0].p.Y
	for i := 1; i < 4; i++ {
		if s := pts[i].p.X + pts[i].p.Y; s < best {
			best = s
			anchor = i
		}
	}
	ordered := make([]Point, 4)
	for i := 0; i < 4; i++ {
		ordered[i] = pts[(anchor+i)%4].p
	}
	return Corners{TL: ordered[0], TR: ordered[1], BR: ordered[2], BL: ordered[3]}
}
