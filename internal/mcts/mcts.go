// Package mcts implements a PUCT tree search that amortises additional
// visits on top of a single neural-network evaluation per leaf: no
// rollouts, the prior and leaf value both come from one C9 evaluation.
package mcts

import (
	"math"
	"sort"

	"github.com/weiqilab/katacore/internal/board"
	"github.com/weiqilab/katacore/internal/infer"
)

// cPUCT is the exploration constant in the selection formula
// q + cPUCT*p*sqrt(max(Nparent,1))/(1+Nchild).
const cPUCT = 1.5

// Evaluator is the subset of *infer.Session the tree search needs. Tests
// inject a fake implementation so the tree-walk logic can be exercised
// without a real ONNX runtime.
type Evaluator interface {
	Run(pos *board.Position) (*infer.AnalysisResult, error)
}

// Node is one vertex of the search tree. Visits and ValueSum are always
// kept in Black's frame, regardless of which side is to move at this
// node, so backup is a single unconditional accumulation.
type Node struct {
	Visits   int
	ValueSum float64
	Prior    float64
	Children map[board.Coord]*Node
	Expanded bool
}

func newNode(prior float64) *Node {
	return &Node{Prior: prior, Children: make(map[board.Coord]*Node)}
}

// blackQ is this node's mean value in Black's frame; 0 for an unvisited
// node.
func (n *Node) blackQ() float64 {
	if n.Visits == 0 {
		return 0
	}
	return n.ValueSum / float64(n.Visits)
}

// q converts blackQ into mover's frame: identity for Black, one-minus for
// White.
func q(n *Node, mover board.Stone) float64 {
	if n.Visits == 0 {
		return 0
	}
	bq := n.blackQ()
	if mover == board.Black {
		return bq
	}
	return 1 - bq
}

func selectChild(n *Node, mover board.Stone) (board.Coord, *Node) {
	var bestCoord board.Coord
	var bestChild *Node
	bestScore := math.Inf(-1)
	parentVisits := math.Max(1, float64(n.Visits))
	for c, ch := range n.Children {
		u := cPUCT * ch.Prior * math.Sqrt(parentVisits) / (1 + float64(ch.Visits))
		score := q(ch, mover) + u
		if score > bestScore {
			bestScore = score
			bestCoord = c
			bestChild = ch
		}
	}
	return bestCoord, bestChild
}

// lastTwoArePasses reports whether the two most recent plies in pos's
// history were both passes, the search tree's terminal condition.
func lastTwoArePasses(pos *board.Position) bool {
	n := len(pos.History)
	if n < 2 {
		return false
	}
	return pos.History[n-1].IsPass() && pos.History[n-2].IsPass()
}

// Search runs numVisits PUCT iterations from rootPos and returns an
// AnalysisResult whose move suggestions are the root children's
// visit-share, whose win-rate is the root's accumulated Black-frame
// value, and whose score lead and ownership come from the root's single
// direct evaluation (per-position quantities, not averaged over visits).
//
// Intended for numVisits > 1; callers with numVisits <= 1 should call
// Run/ev.Run directly instead.
func Search(ev Evaluator, rootPos *board.Position, numVisits int) (*infer.AnalysisResult, error) {
	root := newNode(1.0)
	var rootEval *infer.AnalysisResult

	for i := 0; i < numVisits; i++ {
		pos := rootPos.Clone()
		path := []*Node{root}
		node := root
		terminal := false

		for node.Expanded && len(node.Children) > 0 {
			if lastTwoArePasses(pos) {
				terminal = true
				break
			}
			mover := pos.NextToPlay
			coord, child := selectChild(node, mover)
			if child == nil {
				break
			}
			if !coord.IsPass() && !pos.IsPlayable(mover, coord) {
				// Illegal due to a rule interaction the coarse legality
				// filter missed: truncate the path here.
				terminal = true
				break
			}
			pos = pos.Play(mover, coord)
			path = append(path, child)
			node = child
		}

		var leafValue float64
		switch {
		case terminal:
			leafValue = node.blackQ()
		case !node.Expanded:
			res, err := ev.Run(pos)
			if err != nil {
				return nil, err
			}
			if node == root {
				rootEval = res
			}
			node.Expanded = true
			mover := pos.NextToPlay
			for _, sug := range res.MoveSuggestions {
				if sug.Coord.IsPass() || pos.IsPlayable(mover, sug.Coord) {
					node.Children[sug.Coord] = newNode(float64(sug.Probability))
				}
			}
			leafValue = res.WinRate
		default:
			// Expanded with zero legal children: no continuation, treat
			// as terminal at its running average.
			leafValue = node.blackQ()
		}

		for _, n := range path {
			n.Visits++
			n.ValueSum += leafValue
		}
	}

	if rootEval == nil {
		res, err := ev.Run(rootPos)
		if err != nil {
			return nil, err
		}
		rootEval = res
	}

	return assembleResult(root, rootEval), nil
}

type visitEntry struct {
	coord  board.Coord
	visits int
}

// assembleResult builds the final AnalysisResult: suggestions by
// visit-share (top 10), win-rate from the root's accumulated value,
// score lead/ownership/turn passed through from the root's own
// evaluation.
func assembleResult(root *Node, rootEval *infer.AnalysisResult) *infer.AnalysisResult {
	entries := make([]visitEntry, 0, len(root.Children))
	total := 0
	for c, ch := range root.Children {
		entries = append(entries, visitEntry{c, ch.Visits})
		total += ch.Visits
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].visits != entries[j].visits {
			return entries[i].visits > entries[j].visits
		}
		return entries[i].coord.Col != entries[j].coord.Col && entries[i].coord.Col < entries[j].coord.Col
	})
	if len(entries) > 10 {
		entries = entries[:10]
	}

	sugs := make([]infer.Suggestion, len(entries))
	for i, e := range entries {
		var p float32
		if total > 0 {
			p = float32(e.visits) / float32(total)
		}
		sugs[i] = infer.Suggestion{Coord: e.coord, Probability: p}
	}

	winRate := rootEval.WinRate
	if root.Visits > 0 {
		winRate = root.blackQ()
	}

	return &infer.AnalysisResult{
		MoveSuggestions: sugs,
		WinRate:         winRate,
		ScoreLead:       rootEval.ScoreLead,
		CurrentTurn:     rootEval.CurrentTurn,
		Ownership:       rootEval.Ownership,
		Visits:          root.Visits,
	}
}
