package vision

import (
	"errors"
)

// Matrix3 is a row-major 3x3 matrix.
type Matrix3 [9]float64

// Apply applies the homography to a point in homogeneous coordinates,
// dividing through by the resulting w.
func (m Matrix3) Apply(p Point) Point {
	w := m[6]*p.X + m[7]*p.Y + m[8]
	x := (m[0]*p.X + m[1]*p.Y + m[2]) / w
	y := (m[3]*p.X + m[4]*p.Y + m[5]) / w
	return Point{X: x, Y: y}
}

// ErrSingular is returned when Gaussian elimination's pivot degenerates
// below the numeric floor.
var ErrSingular = errors.New("vision: homography system is singular")

// ComputeHomography solves for the 3x3 projective map that sends the four
// corners of src (TL,TR,BR,BL) to the corresponding corners of an
// outSize×outSize square — (0,0),(outSize-1,0),(outSize-1,outSize-1),
// (0,outSize-1) — via an 8-equation linear system (two rows per
// correspondence) solved by Gaussian elimination with partial pivoting.
func ComputeHomography(src Corners, outSize int) (Matrix3, error) {
	s := float64(outSize - 1)
	srcPts := [4]Point{src.TL, src.TR, src.BR, src.BL}
	dstPts := [4]Point{{0, 0}, {s, 0}, {s, s}, {0, s}}

	// Unknowns h0..h7 (h8 is fixed to 1). For each correspondence
	// (x,y)->(u,v):
	//   h0*x + h1*y + h2 - h6*x*u - h7*y*u = u
	//   h3*x + h4*y + h5 - h6*x*v - h7*y*v = v
	var a [8][9]float64 // augmented [8x8 | b]
	row := 0
	for i := 0; i < 4; i++ {
		x, y := srcPts[i].X, srcPts[i].Y
		u, v := dstPts[i].X, dstPts[i].Y

		a[row] = [9]float64{x, y, 1, 0, 0, 0, -x * u, -y * u, u}
		row++
		a[row] = [9]float64{0, 0, 0, x, y, 1, -x * v, -y * v, v}
		row++
	}

	h, err := solveGaussian(a)
	if err != nil {
		return Matrix3{}, err
	}
	return Matrix3{h[0], h[1], h[2], h[3], h[4], h[5], h[6], h[7], 1}, nil
}

// solveGaussian solves an 8x8 linear system given as an augmented
// [8][9]float64 matrix, using Gaussian elimination with partial pivoting.
// Fails if any pivot magnitude falls to or below 1e-12.
func solveGaussian(a [8][9]float64) ([8]float64, error) {
	const n = 8
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if abs(a[r][col]) > abs(a[pivot][col]) {
				pivot = r
			}
		}
		a[col], a[pivot] = a[pivot], a[col]
		if abs(a[col][col]) <= 1e-12 {
			return [8]float64{}, ErrSingular
		}
		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c <= n; c++ {
				a[r][c] -= f * a[col][c]
			}
		}
	}

	var x [8]float64
	for r := n - 1; r >= 0; r-- {
		sum := a[r][n]
		for c := r + 1; c < n; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x, nil
}

// Invert returns the inverse of a projective 3x3 matrix via the adjugate
// method, used to map from output (warped) coordinates back to source
// pixel coordinates for the inverse warp.
func (m Matrix3) Invert() (Matrix3, error) {
	det := m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
	if abs(det) <= 1e-12 {
		return Matrix3{}, ErrSingular
	}
	inv := 1 / det
	return Matrix3{
		(m[4]*m[8] - m[5]*m[7]) * inv,
		(m[2]*m[7] - m[1]*m[8]) * inv,
		(m[1]*m[5] - m[2]*m[4]) * inv,
		(m[5]*m[6] - m[3]*m[8]) * inv,
		(m[0]*m[8] - m[2]*m[6]) * inv,
		(m[2]*m[3] - m[0]*m[5]) * inv,
		(m[3]*m[7] - m[4]*m[6]) * inv,
		(m[1]*m[6] - m[0]*m[7]) * inv,
		(m[0]*m[4] - m[1]*m[3]) * inv,
	}, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
