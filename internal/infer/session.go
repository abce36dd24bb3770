// Package infer implements the board featurizer (C8) and the neural
// inference session (C9): back-end negotiation across execution
// providers, element-type detection with a half-precision retry, the
// single-run and batched-run paths, output decoding, the ko filter, and
// the fingerprint-keyed result cache.
package infer

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/sync/errgroup"

	"github.com/weiqilab/katacore/internal/apperr"
	"github.com/weiqilab/katacore/internal/board"
)

// Options configures a Session.
type Options struct {
	ModelBytes         []byte
	BackendPreference  []BackendKind
	WASMPath           string
	EnableGraphCapture bool
	StaticBatchSize    int // 0 = auto-detect from the model
	BoardSize          int
	Threads            int
	EnableCache        bool
	CacheCapacity      int
}

// Session is the negotiated, ready-to-run inference engine: one compiled
// backend, its resolved capabilities, and an optional result cache. It is
// created once per (model, back-end, batch-size, board-size) and reused
// across many requests.
type Session struct {
	log *slog.Logger

	opts         Options
	be           backend
	compiledBN   int // compiled batch size
	elemHalf     bool
	halfPinned   bool
	hasOwnership bool

	runtime        RuntimeInfo
	negotiatedKind BackendKind
	didFallback    bool
	requested      BackendKind

	cache            *resultCache
	internalRunCount int

	mu sync.Mutex
}

// NewSession negotiates a back-end from opts.BackendPreference, falling
// back through the remainder on failure, then compiles the static batch
// size and allocates any graph-capture device buffers.
func NewSession(opts Options) (*Session, error) {
	if opts.BoardSize <= 0 {
		return nil, apperr.New(apperr.ConfigurationError, "boardSize must be positive")
	}
	if len(opts.ModelBytes) == 0 {
		return nil, apperr.New(apperr.ConfigurationError, "modelBytes is empty")
	}
	if err := ensureRuntime(); err != nil {
		return nil, apperr.Wrap(apperr.ConfigurationError, "infer: runtime initialization failed", err)
	}

	log := slog.With("component", "infer")

	elemHalf, hasOwnership, modelBatch, inspectErr := inspectModel(opts.ModelBytes)
	if inspectErr != nil {
		log.Debug("model introspection failed, defaulting to float32 input", "err", inspectErr)
		elemHalf = false
	}

	compiledBN := opts.StaticBatchSize
	if compiledBN <= 0 && modelBatch > 0 {
		compiledBN = modelBatch
	}
	if compiledBN <= 0 {
		compiledBN = 1
	}
	if opts.EnableGraphCapture {
		compiledBN = 1
	}

	prefs := opts.BackendPreference
	if len(prefs) == 0 {
		prefs = []BackendKind{Portable}
	}
	if prefs[len(prefs)-1] != Portable {
		prefs = append(append([]BackendKind(nil), prefs...), Portable)
	}

	var (
		chosen       backend
		chosenKind   BackendKind
		chosenInfo   RuntimeInfo
		didFallback  bool
		lastErr      error
	)
	for i, kind := range prefs {
		be := newBackend(kind)
		if err := be.initialize(opts.ModelBytes, opts.BoardSize, opts.Threads, opts.EnableGraphCapture, elemHalf, hasOwnership); err != nil {
			log.Warn("backend initialization failed", "backend", kind, "err", err)
			lastErr = err
			continue
		}
		chosen = be
		chosenKind = kind
		chosenInfo = be.runtimeInfo()
		didFallback = i > 0
		chosenInfo.DidFallback = didFallback
		chosenInfo.RequestedBackend = prefs[0]
		lastErr = nil
		break
	}
	if chosen == nil {
		return nil, apperr.Wrap(apperr.ConfigurationError, "no backend in preference list could be initialized", lastErr)
	}

	s := &Session{
		log:            log,
		opts:           opts,
		be:             chosen,
		compiledBN:     compiledBN,
		elemHalf:       elemHalf,
		hasOwnership:   hasOwnership,
		runtime:        chosenInfo,
		negotiatedKind: chosenKind,
		didFallback:    didFallback,
		requested:      prefs[0],
	}
	if opts.EnableCache {
		cap := opts.CacheCapacity
		if cap <= 0 {
			cap = 1000
		}
		s.cache = newResultCache(cap)
	}
	return s, nil
}

// DidFallback and RequestedBackend surface backend negotiation outcome:
// non-fatal, reported via result metadata rather than as a rejection.
func (s *Session) DidFallback() bool            { return s.didFallback }
func (s *Session) RequestedBackend() BackendKind { return s.requested }
func (s *Session) Runtime() RuntimeInfo          { return s.runtime }
func (s *Session) Capabilities() Capabilities    { return s.be.capabilities() }

// RunCount returns the number of backend inferences performed (cache hits
// excluded).
func (s *Session) RunCount() int {
	if s.cache == nil {
		return s.internalRunCount
	}
	return s.cache.runCount
}

// Run performs the single-run path for one position: cache lookup,
// featurize, backend run (with one half-precision retry on element-type
// mismatch), decode, ko-filter.
func (s *Session) Run(pos *board.Position) (*AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fp uint64
	if s.cache != nil {
		fp = Fingerprint(pos)
		if cached, ok := s.cache.get(fp); ok {
			return cloneResult(cached), nil
		}
	}

	res, err := s.runOne(pos)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.put(fp, res)
	}
	return res, nil
}

func (s *Session) runOne(pos *board.Position) (*AnalysisResult, error) {
	n := pos.Size
	spatial := make([]float32, SpatialSize(n))
	global := make([]float32, Globals)
	Featurize(pos, spatial, global, 0, 0)

	policy, value, misc, ownership, err := s.be.run(spatial, global, 1)
	if err != nil && !s.halfPinned && looksLikeElementTypeMismatch(err) {
		s.log.Warn("run failed on element-type mismatch, retrying with the alternate type", "err", err)
		if rerr := s.retryWithFlippedElementType(); rerr != nil {
			return nil, apperr.Wrap(apperr.AnalysisError, "element-type retry failed", rerr)
		}
		policy, value, misc, ownership, err = s.be.run(spatial, global, 1)
	}
	if s.cache != nil {
		s.cache.recordRun()
	} else {
		s.internalRunCount++
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.AnalysisError, "backend run failed", err)
	}

	res := decodeOutputs(policy, value, misc, ownership, n, pos.NextToPlay)
	res.Visits = 1
	applyKoFilter(res, pos)
	return res, nil
}

// retryWithFlippedElementType reinitializes the backend with the opposite
// element type and pins the mode for subsequent runs: converts and retries
// once, then commits to that element type for the life of the session.
func (s *Session) retryWithFlippedElementType() error {
	s.be.dispose()
	newHalf := !s.elemHalf
	be := newBackend(s.negotiatedKind)
	if err := be.initialize(s.opts.ModelBytes, s.opts.BoardSize, s.opts.Threads, s.opts.EnableGraphCapture, newHalf, s.hasOwnership); err != nil {
		return err
	}
	s.be = be
	s.elemHalf = newHalf
	s.halfPinned = true
	info := be.runtimeInfo()
	info.DidFallback = s.didFallback
	info.RequestedBackend = s.requested
	s.runtime = info
	return nil
}

func looksLikeElementTypeMismatch(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "float16") || strings.Contains(msg, "half") || strings.Contains(msg, "element type")
}

// RunBatch performs the batched path: chunk positions into groups of at
// most the compiled batch size, run each chunk, assemble per-item outputs
// in input order.
func (s *Session) RunBatch(positions []*board.Position) ([]*AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*AnalysisResult, len(positions))
	pending := make([]int, 0, len(positions))

	for i, pos := range positions {
		if s.cache == nil {
			pending = append(pending, i)
			continue
		}
		fp := Fingerprint(pos)
		if cached, ok := s.cache.get(fp); ok {
			out[i] = cloneResult(cached)
			continue
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += s.compiledBN {
		end := start + s.compiledBN
		if end > len(pending) {
			end = len(pending)
		}
		idxs := pending[start:end]
		if err := s.runChunk(positions, idxs, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Session) runChunk(positions []*board.Position, idxs []int, out []*AnalysisResult) error {
	if len(idxs) == 0 {
		return nil
	}
	n := positions[idxs[0]].Size
	batch := len(idxs)
	spatial := make([]float32, SpatialSize(n)*batch)
	global := make([]float32, Globals*batch)

	// Each item's featurization writes to its own disjoint slice range,
	// so the batch can be featurized concurrently ahead of the single
	// serialized backend run below.
	var g errgroup.Group
	for j, i := range idxs {
		j, i := j, i
		g.Go(func() error {
			Featurize(positions[i], spatial, global, j*SpatialSize(n), j*Globals)
			return nil
		})
	}
	_ = g.Wait()

	policy, value, misc, ownership, err := s.be.run(spatial, global, batch)
	if err != nil && !s.halfPinned && looksLikeElementTypeMismatch(err) {
		if rerr := s.retryWithFlippedElementType(); rerr != nil {
			return apperr.Wrap(apperr.AnalysisError, "element-type retry failed", rerr)
		}
		policy, value, misc, ownership, err = s.be.run(spatial, global, batch)
	}
	if s.cache != nil {
		s.cache.recordRun()
	} else {
		s.internalRunCount++
	}
	if err != nil {
		return apperr.Wrap(apperr.AnalysisError, "backend run failed", err)
	}

	polStride := n*n + 1
	ownStride := n * n
	for j, i := range idxs {
		itemPolicy := policy[j*polStride : (j+1)*polStride]
		itemValue := value[j*3 : (j+1)*3]
		itemMisc := misc[j*10 : (j+1)*10]
		var itemOwn []float32
		if ownership != nil {
			itemOwn = ownership[j*ownStride : (j+1)*ownStride]
		}
		res := decodeOutputs(itemPolicy, itemValue, itemMisc, itemOwn, n, positions[i].NextToPlay)
		res.Visits = 1
		applyKoFilter(res, positions[i])
		out[i] = res
		if s.cache != nil {
			s.cache.put(Fingerprint(positions[i]), res)
		}
	}
	return nil
}

// Dispose releases the backend and any device buffers it holds.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.be.dispose()
}

func cloneResult(r *AnalysisResult) *AnalysisResult {
	cp := *r
	cp.MoveSuggestions = append([]Suggestion(nil), r.MoveSuggestions...)
	if r.Ownership != nil {
		cp.Ownership = append([]float64(nil), r.Ownership...)
	}
	return &cp
}

// decodeOutputs turns the four raw head outputs for one item into an
// AnalysisResult expressed in Black's frame of reference.
func decodeOutputs(policy, value, misc, ownership []float32, boardSize int, mover board.Stone) *AnalysisResult {
	winLogits := softmax3(value[0], value[1], value[2])
	currentWin := float64(winLogits[0])
	winRateBlack := currentWin
	if mover != board.Black {
		winRateBlack = 1 - currentWin
	}

	sign := 1.0
	if mover != board.Black {
		sign = -1.0
	}
	scoreLead := float64(misc[2]) * 20.0 * sign

	policyProbs := softmax(policy)

	var ownershipOut []float64
	if ownership != nil {
		ownershipOut = make([]float64, len(ownership))
		ownSign := float32(1)
		if mover != board.Black {
			ownSign = -1
		}
		for i, v := range ownership {
			o := float64(v * ownSign)
			if o > 1 {
				o = 1
			} else if o < -1 {
				o = -1
			}
			ownershipOut[i] = o
		}
	}

	suggestions := topSuggestions(policyProbs, boardSize, 10)

	return &AnalysisResult{
		MoveSuggestions: suggestions,
		WinRate:         winRateBlack,
		ScoreLead:       scoreLead,
		CurrentTurn:     mover,
		Ownership:       ownershipOut,
	}
}

func softmax3(a, b, c float32) [3]float32 {
	max := a
	if b > max {
		max = b
	}
	if c > max {
		max = c
	}
	ea := math.Exp(float64(a - max))
	eb := math.Exp(float64(b - max))
	ec := math.Exp(float64(c - max))
	sum := ea + eb + ec
	return [3]float32{float32(ea / sum), float32(eb / sum), float32(ec / sum)}
}

func softmax(logits []float32) []float32 {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	out := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - max))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// topSuggestions converts the boardSize²+1-length policy vector (last
// index is pass) into coordinates and returns the top n by probability.
func topSuggestions(probs []float32, boardSize, n int) []Suggestion {
	all := make([]Suggestion, len(probs))
	for i, p := range probs {
		var c board.Coord
		if i == len(probs)-1 {
			c = board.Pass
		} else {
			c = board.Coord{Col: i % boardSize, Row: i / boardSize}
		}
		all[i] = Suggestion{Coord: c, Probability: p}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Probability > all[j].Probability })
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// applyKoFilter removes any suggestion equal to the ko-forbidden vertex
// for the side to move, then renormalises the remainder to sum to one.
func applyKoFilter(res *AnalysisResult, pos *board.Position) {
	if pos.Ko == nil || pos.Ko.ForbiddenSide != pos.NextToPlay {
		return
	}
	filtered := res.MoveSuggestions[:0:0]
	var total float32
	for _, s := range res.MoveSuggestions {
		if s.Coord == pos.Ko.Vertex {
			continue
		}
		filtered = append(filtered, s)
		total += s.Probability
	}
	if total > 0 {
		for i := range filtered {
			filtered[i].Probability /= total
		}
	}
	res.MoveSuggestions = filtered
}

// inspectModel reads the model's first input/output declarations to
// detect a 16-bit half element type, an ownership head, and a positive
// first-dimension batch size.
func inspectModel(modelBytes []byte) (elemHalf, hasOwnership bool, modelBatch int, err error) {
	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(modelBytes)
	if err != nil {
		return false, false, 0, fmt.Errorf("inspect model IO: %w", err)
	}
	if len(inputs) > 0 {
		elemHalf = inputs[0].DataType == ort.TensorElementDataTypeFloat16
		if len(inputs[0].Dimensions) > 0 && inputs[0].Dimensions[0] > 0 {
			modelBatch = int(inputs[0].Dimensions[0])
		}
	}
	for _, o := range outputs {
		if o.Name == outputOwnershipName {
			hasOwnership = true
		}
	}
	return elemHalf, hasOwnership, modelBatch, nil
}
