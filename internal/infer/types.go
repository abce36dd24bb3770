package infer

import "github.com/weiqilab/katacore/internal/board"

// Suggestion is one entry of an ordered move-suggestion list.
type Suggestion struct {
	Coord       board.Coord
	Probability float32
}

// AnalysisResult is the output of one position evaluation.
type AnalysisResult struct {
	MoveSuggestions []Suggestion
	WinRate         float64 // [0,1], Black's frame
	ScoreLead       float64 // Black's frame
	CurrentTurn     board.Stone
	Ownership       []float64 // len boardSize², Black's frame; nil if the model has no ownership head
	Visits          int
}

// BackendKind names one of the four execution-provider variants a session
// can negotiate and dispatch to.
type BackendKind string

const (
	Portable          BackendKind = "portable"
	GPUCompute        BackendKind = "gpu-compute"
	NeuralCoprocessor BackendKind = "neural-coprocessor"
	NativeSidecar     BackendKind = "native-sidecar"
)

// Capabilities describes what a negotiated backend actually supports,
// which may be weaker than what was requested (e.g. after falling back to
// portable).
type Capabilities struct {
	Kind                  BackendKind
	SupportsGraphCapture  bool
	SupportsDeviceBuffers bool
	ElementTypeIsHalf     bool
}

// RuntimeInfo is diagnostic metadata about the negotiated backend, surfaced
// for logging and the backend-fallback notification.
type RuntimeInfo struct {
	Name             string
	DidFallback      bool
	RequestedBackend BackendKind
}
