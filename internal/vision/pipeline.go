package vision

import (
	"image"

	"github.com/weiqilab/katacore/internal/apperr"
)

func defaultedOptions(opt Options) Options {
	if opt.OutputSize == 0 {
		opt.OutputSize = 800
	}
	if opt.BlackThreshold == 0 {
		opt.BlackThreshold = 45
	}
	if opt.WhiteThreshold == 0 {
		opt.WhiteThreshold = 30
	}
	return opt
}

// Recognize runs the full pipeline (C1 -> C4 -> C3 -> C1(gray) -> C5 ->
// C6): detect the board quadrilateral (falling back to DetectBoardByHough
// when the mask walk fails), warp it to a square, classify every intersection, and emit
// the position-file text.
func Recognize(img image.Image, opt Options) (*Result, error) {
	opt = defaultedOptions(opt)
	if opt.BoardSize <= 0 {
		return nil, apperr.New(apperr.ConfigurationError, "vision: boardSize must be positive")
	}

	corners, detected, err := DetectBoard(img)
	if err != nil {
		return nil, apperr.Wrap(apperr.LoadError, "vision: board detection failed", err)
	}
	if !detected {
		if hc, ok := DetectBoardByHough(img); ok {
			corners, detected = hc, true
		}
	}

	return finishRecognition(img, corners, detected, nil, opt)
}

// ReclassifyWithCorners re-runs the warp and classification stages using
// caller-supplied corners instead of detection.
func ReclassifyWithCorners(img image.Image, corners Corners, opt Options) (*Result, error) {
	opt = defaultedOptions(opt)
	if opt.BoardSize <= 0 {
		return nil, apperr.New(apperr.ConfigurationError, "vision: boardSize must be positive")
	}
	return finishRecognition(img, corners, true, nil, opt)
}

// ReclassifyWithHints re-runs classification using caller-supplied
// corners and calibration hints.
func ReclassifyWithHints(img image.Image, corners Corners, hints []Hint, opt Options) (*Result, error) {
	opt = defaultedOptions(opt)
	if opt.BoardSize <= 0 {
		return nil, apperr.New(apperr.ConfigurationError, "vision: boardSize must be positive")
	}
	return finishRecognition(img, corners, true, hints, opt)
}

func finishRecognition(img image.Image, corners Corners, detected bool, hints []Hint, opt Options) (*Result, error) {
	if !detected {
		return &Result{BoardSize: opt.BoardSize, CornersDetected: false}, nil
	}

	h, err := ComputeHomography(corners, opt.OutputSize)
	if err != nil {
		return nil, apperr.Wrap(apperr.LoadError, "vision: homography computation failed", err)
	}
	invH, err := h.Invert()
	if err != nil {
		return nil, apperr.Wrap(apperr.LoadError, "vision: homography inversion failed", err)
	}
	warped := Warp(img, invH, opt.OutputSize)

	stones := ClassifyStones(warped, opt.BoardSize, opt.GridCorners, hints)
	posFile := EmitPositionFile(opt.BoardSize, stones)

	return &Result{
		BoardSize:            opt.BoardSize,
		Stones:               stones,
		Corners:              corners,
		CornersDetected:      true,
		PositionFile:         posFile,
		WarpedImage:          warped,
		EstimatedGridCorners: opt.GridCorners,
	}, nil
}
