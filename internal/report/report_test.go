package report

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weiqilab/katacore/internal/board"
	"github.com/weiqilab/katacore/internal/infer"
)

func analysis(scoreLead, winRate float64, suggestions ...infer.Suggestion) *infer.AnalysisResult {
	return &infer.AnalysisResult{
		MoveSuggestions: suggestions,
		WinRate:         winRate,
		ScoreLead:       scoreLead,
	}
}

func TestClassifyByPointsLostThresholds(t *testing.T) {
	cases := []struct {
		pointsLost float64
		want       Category
	}{
		{0.0, AIMove},
		{0.2, AIMove},
		{0.5, Good},
		{1.5, Inaccuracy},
		{3.0, Mistake},
		{9.9, Blunder},
	}
	for _, c := range cases {
		require.Equal(t, c.want, classifyByPointsLost(c.pointsLost), "pointsLost=%v", c.pointsLost)
	}
}

func TestComputeMoveStatsPointsLostSignConvention(t *testing.T) {
	before := analysis(3.0, 0.55, infer.Suggestion{Coord: board.Coord{Col: 2, Row: 2}, Probability: 0.4})
	after := analysis(1.0, 0.50)

	// Black played a move that dropped the Black-frame score lead from
	// 3.0 to 1.0: a loss of 2.0 for Black.
	ms := computeMoveStats(MoveInput{Before: before, After: after, Player: board.Black, Coord: board.Coord{Col: 5, Row: 5}}, 10, 19, false)
	require.InDelta(t, 2.0, ms.PointsLost, 1e-9)
	require.Equal(t, 0, ms.Rank, "played coordinate was not among the suggestions")
	require.Equal(t, Inaccuracy, ms.Category)

	// Same score swing, but White is to move: the same swing favours
	// White, so White gained rather than lost.
	msWhite := computeMoveStats(MoveInput{Before: before, After: after, Player: board.White, Coord: board.Coord{Col: 5, Row: 5}}, 10, 19, false)
	require.Equal(t, 0.0, msWhite.PointsLost)
	require.InDelta(t, 2.0, msWhite.PointsGained, 1e-9)
}

func TestDerivePhaseUsesBoardSizeThresholds(t *testing.T) {
	require.Equal(t, Opening, derivePhase(9, 5))
	require.Equal(t, MiddleGame, derivePhase(9, 20))
	require.Equal(t, EndGame, derivePhase(9, 41))

	require.Equal(t, Opening, derivePhase(19, 10))
	require.Equal(t, MiddleGame, derivePhase(19, 100))
	require.Equal(t, EndGame, derivePhase(19, 151))
}

func TestGenerateAggregatesAndFlagsTurningPoints(t *testing.T) {
	req := Request{
		BoardSize: 9,
		Moves: []MoveInput{
			{Before: analysis(0.0, 0.5), After: analysis(0.0, 0.5), Player: board.Black, Coord: board.Pass},
			{Before: analysis(0.0, 0.5), After: analysis(6.0, 0.8), Player: board.Black, Coord: board.Pass},
		},
	}
	rep := Generate(req)

	require.Len(t, rep.Moves, 2)
	require.Contains(t, rep.TurningPoints, 1)
	require.NotContains(t, rep.TurningPoints, 0)
	require.Contains(t, rep.WeightedAccuracy, board.Black)
}

func TestGenerateCarriesHeaderThrough(t *testing.T) {
	header := GameHeader{"result": "B+R", "ruleset": "chinese"}
	rep := Generate(Request{BoardSize: 19, Header: header})
	require.Equal(t, header, rep.Header)
}
