package infer

import (
	"testing"

	"github.com/weiqilab/katacore/internal/board"
)

func TestFeaturizePlaneZeroIsConstantOne(t *testing.T) {
	pos := board.NewPosition(9, board.Black, 7.5)
	spatial := make([]float32, SpatialSize(9))
	global := make([]float32, Globals)

	Featurize(pos, spatial, global, 0, 0)

	for i := 0; i < 9*9; i++ {
		if spatial[i] != 1 {
			t.Fatalf("plane 0 element %d = %v, want 1", i, spatial[i])
		}
	}
}

func TestFeaturizeMarksPlayerAndOpponentStones(t *testing.T) {
	pos := board.NewPosition(9, board.Black, 7.5)
	pos.Set(board.Coord{Col: 2, Row: 2}, board.Black)
	pos.Set(board.Coord{Col: 3, Row: 3}, board.White)
	spatial := make([]float32, SpatialSize(9))
	global := make([]float32, Globals)

	Featurize(pos, spatial, global, 0, 0)

	planeSize := 9 * 9
	if spatial[planePlayer*planeSize+2*9+2] != 1 {
		t.Errorf("next-to-play's own stone should be set in the player plane")
	}
	if spatial[planeOpponent*planeSize+3*9+3] != 1 {
		t.Errorf("opponent's stone should be set in the opponent plane")
	}
}

func TestFeaturizeLibertyPlanesMatchGroupLiberties(t *testing.T) {
	pos := board.NewPosition(9, board.Black, 7.5)
	pos.Set(board.Coord{Col: 0, Row: 0}, board.Black)
	pos.Set(board.Coord{Col: 1, Row: 0}, board.White)
	// Black's corner stone now has exactly one liberty left, at (0,1).
	spatial := make([]float32, SpatialSize(9))
	global := make([]float32, Globals)

	Featurize(pos, spatial, global, 0, 0)

	planeSize := 9 * 9
	if spatial[planeLib1*planeSize+0] != 1 {
		t.Errorf("single-liberty stone should be marked in the liberty-1 plane")
	}
	if spatial[planeLib2*planeSize+0] != 0 || spatial[planeLib3*planeSize+0] != 0 {
		t.Errorf("single-liberty stone should not appear in the liberty-2/3 planes")
	}
}

func TestFeaturizeKoPlaneMarksForbiddenVertexForNextToPlay(t *testing.T) {
	pos := board.NewPosition(9, board.Black, 7.5)
	pos.Ko = &board.KoInfo{ForbiddenSide: board.Black, Vertex: board.Coord{Col: 4, Row: 4}}
	spatial := make([]float32, SpatialSize(9))
	global := make([]float32, Globals)

	Featurize(pos, spatial, global, 0, 0)

	planeSize := 9 * 9
	if spatial[planeKo*planeSize+4*9+4] != 1 {
		t.Errorf("ko plane should mark the forbidden vertex when it applies to the side to move")
	}
}

func TestFeaturizeKoPlaneEmptyWhenForbiddenSideIsOpponent(t *testing.T) {
	pos := board.NewPosition(9, board.Black, 7.5)
	pos.Ko = &board.KoInfo{ForbiddenSide: board.White, Vertex: board.Coord{Col: 4, Row: 4}}
	spatial := make([]float32, SpatialSize(9))
	global := make([]float32, Globals)

	Featurize(pos, spatial, global, 0, 0)

	planeSize := 9 * 9
	if spatial[planeKo*planeSize+4*9+4] != 0 {
		t.Errorf("ko plane should stay empty when the restriction does not apply to the side to move")
	}
}

func TestFeaturizeHistoryPassFlagsGlobals(t *testing.T) {
	pos := board.NewPosition(9, board.Black, 7.5)
	pos.History = append(pos.History, board.Pass, board.Pass, board.Coord{Col: 1, Row: 1})
	spatial := make([]float32, SpatialSize(9))
	global := make([]float32, Globals)

	Featurize(pos, spatial, global, 0, 0)

	if global[0] != 1 || global[1] != 1 {
		t.Errorf("global pass flags for the two oldest (padded) history slots should be set")
	}
	if global[4] != 0 {
		t.Errorf("global pass flag for the stone-placing ply should not be set")
	}
}

func TestFeaturizeKomiGlobalIsScaled(t *testing.T) {
	pos := board.NewPosition(9, board.Black, 7.5)
	spatial := make([]float32, SpatialSize(9))
	global := make([]float32, Globals)

	Featurize(pos, spatial, global, 0, 0)

	want := float32(7.5 / 20.0)
	if global[5] != want {
		t.Errorf("global[5] = %v, want %v", global[5], want)
	}
}

func TestFeaturizeRespectsOffsets(t *testing.T) {
	pos := board.NewPosition(9, board.Black, 7.5)
	pos.Set(board.Coord{Col: 0, Row: 0}, board.Black)
	spatial := make([]float32, 2*SpatialSize(9))
	global := make([]float32, 2*Globals)

	// Write only into the second slot; a wrong offset would touch the first.
	Featurize(pos, spatial, global, SpatialSize(9), Globals)

	for i := 0; i < SpatialSize(9); i++ {
		if spatial[i] != 0 {
			t.Fatalf("writing at a nonzero offset touched element %d of the first slot", i)
		}
	}
	if spatial[SpatialSize(9)] != 1 {
		t.Errorf("plane 0 of the second slot should still be populated")
	}
}

func TestFingerprintIsDeterministic(t *testing.T) {
	pos := board.NewPosition(9, board.Black, 7.5)
	pos.Set(board.Coord{Col: 2, Row: 2}, board.Black)

	a := Fingerprint(pos)
	b := Fingerprint(pos)
	if a != b {
		t.Errorf("Fingerprint is not deterministic for the same position: %d != %d", a, b)
	}
}

func TestFingerprintDiffersOnStoneChange(t *testing.T) {
	pos := board.NewPosition(9, board.Black, 7.5)
	a := Fingerprint(pos)

	pos.Set(board.Coord{Col: 4, Row: 4}, board.Black)
	b := Fingerprint(pos)

	if a == b {
		t.Errorf("Fingerprint should change when the grid changes")
	}
}

func TestFingerprintDiffersOnKoPresence(t *testing.T) {
	pos := board.NewPosition(9, board.Black, 7.5)
	a := Fingerprint(pos)

	pos.Ko = &board.KoInfo{ForbiddenSide: board.Black, Vertex: board.Coord{Col: 3, Row: 3}}
	b := Fingerprint(pos)

	if a == b {
		t.Errorf("Fingerprint should change when a ko restriction is introduced")
	}
}
