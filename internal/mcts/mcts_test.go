package mcts

import (
	"testing"

	"github.com/weiqilab/katacore/internal/board"
	"github.com/weiqilab/katacore/internal/infer"
)

// fakeEvaluator returns a fixed, uniform-ish evaluation for every position,
// deterministic enough to make tree-shape assertions possible without a
// real ONNX runtime.
type fakeEvaluator struct {
	runs int
}

func (f *fakeEvaluator) Run(pos *board.Position) (*infer.AnalysisResult, error) {
	f.runs++
	n := pos.Size
	sugs := make([]infer.Suggestion, 0, n*n+1)
	// Uniform prior over every empty point plus pass, biased slightly
	// toward the centre so selection has a deterministic favourite.
	centre := board.Coord{Col: n / 2, Row: n / 2}
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			c := board.Coord{Col: col, Row: row}
			if pos.IsOccupied(c) {
				continue
			}
			p := float32(1)
			if c == centre {
				p = 5
			}
			sugs = append(sugs, infer.Suggestion{Coord: c, Probability: p})
		}
	}
	sugs = append(sugs, infer.Suggestion{Coord: board.Pass, Probability: 0.1})

	return &infer.AnalysisResult{
		MoveSuggestions: sugs,
		WinRate:         0.55,
		ScoreLead:       1.5,
		CurrentTurn:     pos.NextToPlay,
		Visits:          1,
	}, nil
}

func TestSearchVisitCountMatchesRequestedExactly(t *testing.T) {
	pos := board.NewPosition(9, board.Black, 7.5)
	ev := &fakeEvaluator{}

	res, err := Search(ev, pos, 32)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Visits != 32 {
		t.Fatalf("root visits = %d, want 32", res.Visits)
	}
}

func TestSearchSuggestionsAreVisitOrdered(t *testing.T) {
	pos := board.NewPosition(9, board.Black, 7.5)
	ev := &fakeEvaluator{}

	res, err := Search(ev, pos, 64)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.MoveSuggestions) == 0 {
		t.Fatalf("expected at least one suggestion")
	}
	for i := 1; i < len(res.MoveSuggestions); i++ {
		if res.MoveSuggestions[i].Probability > res.MoveSuggestions[i-1].Probability {
			t.Fatalf("suggestions not sorted descending by visit-share at index %d", i)
		}
	}
	if len(res.MoveSuggestions) > 10 {
		t.Fatalf("expected at most 10 suggestions, got %d", len(res.MoveSuggestions))
	}
	centre := board.Coord{Col: 4, Row: 4}
	if res.MoveSuggestions[0].Coord != centre {
		t.Fatalf("expected the heavily-favoured centre point to get the most visits, got %v", res.MoveSuggestions[0].Coord)
	}
}

func TestSearchScoreLeadAndOwnershipComeFromRootEvalOnly(t *testing.T) {
	pos := board.NewPosition(9, board.Black, 7.5)
	ev := &fakeEvaluator{}

	res, err := Search(ev, pos, 16)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.ScoreLead != 1.5 {
		t.Fatalf("ScoreLead = %v, want the root evaluation's own 1.5", res.ScoreLead)
	}
}

func TestSearchNeverExpandsIllegalChildren(t *testing.T) {
	pos := board.NewPosition(9, board.Black, 7.5)
	pos.Set(board.Coord{Col: 4, Row: 4}, board.Black)
	ev := &fakeEvaluator{}

	res, err := Search(ev, pos, 20)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	centre := board.Coord{Col: 4, Row: 4}
	for _, s := range res.MoveSuggestions {
		if s.Coord == centre {
			t.Fatalf("suggestion list contains the already-occupied centre point")
		}
	}
}

func TestSearchRunsOneEvaluationPerNewlyExpandedLeaf(t *testing.T) {
	pos := board.NewPosition(9, board.Black, 7.5)
	ev := &fakeEvaluator{}

	if _, err := Search(ev, pos, 10); err != nil {
		t.Fatalf("Search: %v", err)
	}
	// One evaluation for the root, plus up to one per further visit that
	// reaches a fresh leaf; never more than the visit count.
	if ev.runs == 0 || ev.runs > 10 {
		t.Fatalf("runs = %d, want between 1 and 10", ev.runs)
	}
}
