// Package vision implements the board-recognition pipeline: a
// deterministic image-processing chain that turns a photograph of a
// physical board into a set of detected stones and a position file.
package vision

import (
	"image"

	"github.com/weiqilab/katacore/internal/board"
)

// Point is a floating-point pixel coordinate, distinct from board.Coord
// which is an integer grid coordinate.
type Point struct {
	X, Y float64
}

// Corners holds the four detected board corners in TL,TR,BR,BL order.
type Corners struct {
	TL, TR, BR, BL Point
}

// Stone is one detected intersection: its grid coordinate and color.
type Stone struct {
	Coord board.Coord
	Color board.Stone
}

// Hint is a caller-supplied calibration override for one intersection.
type Hint struct {
	Coord board.Coord
	Color board.Stone
}

// Options configures one recognition request.
type Options struct {
	BoardSize      int
	OutputSize     int // default 800
	BlackThreshold int // default 45
	WhiteThreshold int // default 30
	GridCorners    *Corners
}

// Result is the output of one recognition pass.
type Result struct {
	BoardSize            int
	Stones               []Stone
	Corners              Corners
	CornersDetected      bool
	PositionFile         string
	WarpedImage          *image.RGBA
	EstimatedGridCorners *Corners
}
