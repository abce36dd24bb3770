package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/weiqilab/katacore/internal/board"
)

func TestOrderCornersProducesTLMinimalSum(t *testing.T) {
	// Four points forming a convex quad in general position, supplied out
	// of order.
	quad := [4]Point{
		{X: 90, Y: 10}, // near TR
		{X: 10, Y: 10}, // near TL
		{X: 90, Y: 90}, // near BR
		{X: 10, Y: 90}, // near BL
	}
	c := orderCorners(quad)

	if c.TL.X+c.TL.Y > c.TR.X+c.TR.Y {
		t.Fatalf("TL.x+TL.y should not exceed TR.x+TR.y: TL=%v TR=%v", c.TL, c.TR)
	}
	if c.TL.Y > c.BL.Y {
		t.Fatalf("TL.y should not exceed BL.y: TL=%v BL=%v", c.TL, c.BL)
	}
}

func TestWarpIdentityCornersPreservesCentralPixels(t *testing.T) {
	const size = 64
	src := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			src.SetRGBA(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}

	corners := Corners{
		TL: Point{X: 0, Y: 0},
		TR: Point{X: size - 1, Y: 0},
		BR: Point{X: size - 1, Y: size - 1},
		BL: Point{X: 0, Y: size - 1},
	}
	h, err := ComputeHomography(corners, size)
	if err != nil {
		t.Fatalf("ComputeHomography: %v", err)
	}
	invH, err := h.Invert()
	if err != nil {
		t.Fatalf("Invert: %v", err)
	}
	out := Warp(src, invH, size)

	for _, p := range []image.Point{{X: size / 2, Y: size / 2}, {X: size/2 + 5, Y: size/2 - 5}} {
		want := src.RGBAAt(p.X, p.Y)
		got := out.RGBAAt(p.X, p.Y)
		if diff(want.R, got.R) > 10 || diff(want.G, got.G) > 10 || diff(want.B, got.B) > 10 {
			t.Fatalf("central pixel %v drifted too far: want %v got %v", p, want, got)
		}
	}
}

func diff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func TestEmitPositionFileMatchesSyntheticScenario(t *testing.T) {
	stones := []Stone{
		{Coord: board.Coord{Col: 3, Row: 3}, Color: board.Black},
		{Coord: board.Coord{Col: 5, Row: 5}, Color: board.White},
	}
	out := EmitPositionFile(9, stones)

	for _, want := range []string{"size[9]", "add-black[dd]", "add-white[ff]"} {
		if !contains(out, want) {
			t.Fatalf("position file %q missing substring %q", out, want)
		}
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestParsePositionFileRoundTripsWithEmit(t *testing.T) {
	stones := []Stone{
		{Coord: board.Coord{Col: 3, Row: 3}, Color: board.Black},
		{Coord: board.Coord{Col: 5, Row: 5}, Color: board.White},
		{Coord: board.Coord{Col: 0, Row: 8}, Color: board.White},
	}
	text := EmitPositionFile(9, stones)

	size, parsed, err := ParsePositionFile(text)
	if err != nil {
		t.Fatalf("ParsePositionFile: %v", err)
	}
	if size != 9 {
		t.Fatalf("size = %d, want 9", size)
	}
	if len(parsed) != 3 {
		t.Fatalf("got %d stones, want 3", len(parsed))
	}

	again := EmitPositionFile(size, parsed)
	if again != text {
		t.Fatalf("re-emitted text differs:\nwant %q\ngot  %q", text, again)
	}
}

func TestParsePositionFileRejectsMissingSize(t *testing.T) {
	_, _, err := ParsePositionFile("add-black[dd]\n")
	if err == nil {
		t.Fatal("expected an error for a missing size property")
	}
}

func TestKmeans3SeparatesThreeClusters(t *testing.T) {
	var values []float64
	for i := 0; i < 30; i++ {
		values = append(values, -20+float64(i%3))
	}
	for i := 0; i < 30; i++ {
		values = append(values, float64(i%3))
	}
	for i := 0; i < 30; i++ {
		values = append(values, 20+float64(i%3))
	}
	c := kmeans3(values)
	if !(c[0] < c[1] && c[1] < c[2]) {
		t.Fatalf("centroids not ascending: %v", c)
	}
	if c[2]-c[0] < 30 {
		t.Fatalf("centroids did not separate the three clusters: %v", c)
	}
}
