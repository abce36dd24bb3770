// Package report derives per-game performance statistics from streams of
// AnalysisResults: move classification, phase bucketing, and aggregate
// accuracy and mistake distributions. Straight arithmetic over typed
// streams produced by the inference and recognition subsystems.
package report

import (
	"math"
	"sort"

	"github.com/weiqilab/katacore/internal/board"
	"github.com/weiqilab/katacore/internal/infer"
)

// Category is a move's quality classification, ordered from least to
// most severe so the smaller value always denotes the less severe
// category.
type Category int

const (
	AIMove Category = iota
	Good
	Inaccuracy
	Mistake
	Blunder
)

func (c Category) String() string {
	switch c {
	case AIMove:
		return "aiMove"
	case Good:
		return "good"
	case Inaccuracy:
		return "inaccuracy"
	case Mistake:
		return "mistake"
	default:
		return "blunder"
	}
}

// Phase is the coarse stage of the game a move falls in.
type Phase int

const (
	Opening Phase = iota
	MiddleGame
	EndGame
)

func (p Phase) String() string {
	switch p {
	case Opening:
		return "opening"
	case MiddleGame:
		return "middleGame"
	default:
		return "endGame"
	}
}

// phaseThresholds maps board size to the [opening-end, middleGame-end)
// move-index boundaries. Sizes outside the table fall back to the
// 19x19 thresholds.
var phaseThresholds = map[int][2]int{
	19: {50, 150},
	13: {30, 80},
	9:  {15, 40},
}

func derivePhase(boardSize, moveIndex int) Phase {
	th, ok := phaseThresholds[boardSize]
	if !ok {
		th = phaseThresholds[19]
	}
	switch {
	case moveIndex < th[0]:
		return Opening
	case moveIndex < th[1]:
		return MiddleGame
	default:
		return EndGame
	}
}

var pointsLostThresholds = []struct {
	cat Category
	max float64
}{
	{AIMove, 0.2},
	{Good, 1.0},
	{Inaccuracy, 2.0},
	{Mistake, 5.0},
}

// classifyByPointsLost is the authoritative classification axis: the
// first category whose threshold pointsLost does not exceed, or Blunder
// above the last threshold.
func classifyByPointsLost(pointsLost float64) Category {
	for _, t := range pointsLostThresholds {
		if pointsLost <= t.max {
			return t.cat
		}
	}
	return Blunder
}

// classifyByRank buckets by the played move's rank in the pre-move
// suggestion list.
func classifyByRank(rank int) Category {
	switch {
	case rank == 1:
		return AIMove
	case rank >= 2 && rank <= 3:
		return Good
	case rank >= 4 && rank <= 6:
		return Inaccuracy
	case rank >= 7 && rank <= 10:
		return Mistake
	default:
		return Blunder
	}
}

// classifyByRelativeProbability buckets by the played move's policy
// probability relative to the top suggestion's probability.
func classifyByRelativeProbability(playedProb, topProb float64) Category {
	if topProb <= 0 {
		return Blunder
	}
	ratio := playedProb / topProb
	switch {
	case ratio >= 0.9:
		return AIMove
	case ratio >= 0.5:
		return Good
	case ratio >= 0.2:
		return Inaccuracy
	case ratio >= 0.05:
		return Mistake
	default:
		return Blunder
	}
}

func lessSevere(a, b Category) Category {
	if a < b {
		return a
	}
	return b
}

// weights is the per-category multiplier for weighted accuracy.
var weights = map[Category]float64{
	AIMove:     1.0,
	Good:       0.8,
	Inaccuracy: 0.5,
	Mistake:    0.2,
	Blunder:    0.0,
}

func sgn(player board.Stone) float64 {
	if player == board.Black {
		return 1
	}
	return -1
}

// MoveStats is the per-move record: before/after score and win-rate,
// points lost/gained, the move's rank in the pre-move suggestion list,
// its category, and its phase.
type MoveStats struct {
	MoveIndex     int
	Player        board.Stone
	Coord         board.Coord
	ScoreBefore   float64
	ScoreAfter    float64
	WinRateBefore float64
	WinRateAfter  float64
	PointsLost    float64
	PointsGained  float64
	Rank          int
	Category      Category
	Phase         Phase
}

// MoveInput is one played move plus the analyses of the positions before
// and after it.
type MoveInput struct {
	Before *infer.AnalysisResult
	After  *infer.AnalysisResult
	Player board.Stone
	Coord  board.Coord
}

func rankOf(before *infer.AnalysisResult, coord board.Coord) int {
	for i, s := range before.MoveSuggestions {
		if s.Coord == coord {
			return i + 1
		}
	}
	return 0
}

func computeMoveStats(m MoveInput, moveIndex, boardSize int, usePolicyClassification bool) MoveStats {
	scoreBefore := m.Before.ScoreLead
	scoreAfter := m.After.ScoreLead
	sign := sgn(m.Player)

	pointsLost := math.Max(0, (scoreBefore-scoreAfter)*sign)
	pointsGained := math.Max(0, (scoreAfter-scoreBefore)*sign)
	rank := rankOf(m.Before, m.Coord)

	var category Category
	if usePolicyClassification {
		var playedProb, topProb float64
		if rank > 0 {
			playedProb = float64(m.Before.MoveSuggestions[rank-1].Probability)
		}
		if len(m.Before.MoveSuggestions) > 0 {
			topProb = float64(m.Before.MoveSuggestions[0].Probability)
		}
		category = lessSevere(classifyByRank(rank), classifyByRelativeProbability(playedProb, topProb))
	} else {
		category = classifyByPointsLost(pointsLost)
	}

	return MoveStats{
		MoveIndex:     moveIndex,
		Player:        m.Player,
		Coord:         m.Coord,
		ScoreBefore:   scoreBefore,
		ScoreAfter:    scoreAfter,
		WinRateBefore: m.Before.WinRate,
		WinRateAfter:  m.After.WinRate,
		PointsLost:    pointsLost,
		PointsGained:  pointsGained,
		Rank:          rank,
		Category:      category,
		Phase:         derivePhase(boardSize, moveIndex),
	}
}

// GameHeader carries free-form game metadata (player names, result,
// ruleset) the classifier never interprets but the report passes
// through verbatim for downstream display.
type GameHeader map[string]string

// Request is one game's worth of moves to turn into a Report.
type Request struct {
	BoardSize               int
	Moves                   []MoveInput
	UsePolicyClassification bool
	Header                  GameHeader
}

// Report is the aggregate output: per-move stats, per-player and
// per-phase category distributions, weighted accuracy per player, the
// top mistakes by points lost, and turning-point move indices.
type Report struct {
	Moves                   []MoveStats
	PerPlayerCategoryCounts map[board.Stone]map[Category]int
	PerPhaseCategoryCounts  map[Phase]map[Category]int
	WeightedAccuracy        map[board.Stone]float64
	TopMistakes             []MoveStats
	TurningPoints           []int
	Header                  GameHeader
}

const topMistakeCount = 10
const turningPointThreshold = 5.0

// Generate computes a Report from a Request.
func Generate(req Request) *Report {
	moves := make([]MoveStats, len(req.Moves))
	for i, m := range req.Moves {
		moves[i] = computeMoveStats(m, i, req.BoardSize, req.UsePolicyClassification)
	}

	perPlayer := map[board.Stone]map[Category]int{board.Black: {}, board.White: {}}
	perPhase := map[Phase]map[Category]int{Opening: {}, MiddleGame: {}, EndGame: {}}
	weightSum := map[board.Stone]float64{}
	weightCount := map[board.Stone]int{}
	var turningPoints []int

	for _, ms := range moves {
		perPlayer[ms.Player][ms.Category]++
		perPhase[ms.Phase][ms.Category]++
		weightSum[ms.Player] += weights[ms.Category]
		weightCount[ms.Player]++
		if math.Abs(ms.ScoreAfter-ms.ScoreBefore) >= turningPointThreshold {
			turningPoints = append(turningPoints, ms.MoveIndex)
		}
	}

	weighted := map[board.Stone]float64{}
	for player, sum := range weightSum {
		if weightCount[player] > 0 {
			weighted[player] = sum / float64(weightCount[player]) * 100
		}
	}

	top := append([]MoveStats(nil), moves...)
	sort.Slice(top, func(i, j int) bool { return top[i].PointsLost > top[j].PointsLost })
	if len(top) > topMistakeCount {
		top = top[:topMistakeCount]
	}

	return &Report{
		Moves:                   moves,
		PerPlayerCategoryCounts: perPlayer,
		PerPhaseCategoryCounts:  perPhase,
		WeightedAccuracy:        weighted,
		TopMistakes:             top,
		TurningPoints:           turningPoints,
		Header:                  req.Header,
	}
}
