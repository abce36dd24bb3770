// Package facade is the single asynchronous boundary between a caller
// (the UI) and the Recognition pipeline plus Inference Engine: one
// dedicated worker goroutine owns both, serialising access the same way
// the session itself serialises access to its native runtime handle.
package facade

import (
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weiqilab/katacore/internal/apperr"
	"github.com/weiqilab/katacore/internal/board"
	"github.com/weiqilab/katacore/internal/infer"
	"github.com/weiqilab/katacore/internal/mcts"
	"github.com/weiqilab/katacore/internal/vision"
)

// debounceWindow coalesces bursts of recognize requests (e.g. a
// corner-drag) into the single newest one.
const debounceWindow = 350 * time.Millisecond

// AnalyzeOptions configures one analyzePosition/analyzeBatch request.
type AnalyzeOptions struct {
	Komi       float64
	NextToPlay board.Stone
	History    []board.Coord
	Ko         *board.KoInfo
	NumVisits  int // default 1
}

func (o AnalyzeOptions) withDefaults() AnalyzeOptions {
	if o.Komi == 0 {
		o.Komi = 7.5
	}
	if o.NumVisits == 0 {
		o.NumVisits = 1
	}
	return o
}

// AnalysisResponse is delivered on the channel returned by
// AnalyzePosition.
type AnalysisResponse struct {
	Result *infer.AnalysisResult
	Err    error
}

// RecognitionResponse is delivered on the channel returned by
// RecognizeBoard and its variants.
type RecognitionResponse struct {
	Result *vision.Result
	Err    error
}

type analyzeRequest struct {
	seq    uint64
	pos    *board.Position
	opts   AnalyzeOptions
	respCh chan AnalysisResponse
}

type batchAnalyzeRequest struct {
	seq    uint64
	items  []analyzeItem
	respCh chan []AnalysisResponse
}

type analyzeItem struct {
	pos  *board.Position
	opts AnalyzeOptions
}

type recognizeRequest struct {
	seq     uint64
	img     image.Image
	corners *vision.Corners
	hints   []vision.Hint
	opts    vision.Options
	respCh  chan RecognitionResponse
}

// sessionAPI is the subset of *infer.Session the facade drives. Declaring
// it narrows the facade's dependency to what it actually calls, which
// lets tests substitute a fake session without a real inference backend.
type sessionAPI interface {
	Run(pos *board.Position) (*infer.AnalysisResult, error)
	RunBatch(positions []*board.Position) ([]*infer.AnalysisResult, error)
	Dispose()
}

// Facade is the single-analysis/batch/cancel gateway. It owns one
// inference session and runs all recognition and inference work on a
// single worker goroutine.
type Facade struct {
	session sessionAPI
	log     *slog.Logger

	seq                atomic.Uint64
	latestRecognizeSeq atomic.Uint64
	latestAnalyzeSeq   atomic.Uint64

	analyzeCh      chan analyzeRequest
	batchAnalyzeCh chan batchAnalyzeRequest
	recognizeCh    chan recognizeRequest
	cancelAllCh    chan struct{}
	quit           chan struct{}
	wg             sync.WaitGroup

	disposed atomic.Bool
}

// New creates a Facade around an already-constructed inference session
// and starts its worker goroutine.
func New(session *infer.Session, log *slog.Logger) *Facade {
	return newFacade(session, log)
}

func newFacade(session sessionAPI, log *slog.Logger) *Facade {
	if log == nil {
		log = slog.Default()
	}
	f := &Facade{
		session:        session,
		log:            log.With("component", "facade"),
		analyzeCh:      make(chan analyzeRequest),
		batchAnalyzeCh: make(chan batchAnalyzeRequest),
		recognizeCh:    make(chan recognizeRequest),
		cancelAllCh:    make(chan struct{}),
		quit:           make(chan struct{}),
	}
	f.wg.Add(1)
	go f.run()
	return f
}

func (f *Facade) run() {
	defer f.wg.Done()
	for {
		select {
		case req := <-f.analyzeCh:
			f.handleAnalyze(req)
		case req := <-f.batchAnalyzeCh:
			f.handleBatchAnalyze(req)
		case req := <-f.recognizeCh:
			f.handleRecognize(req)
		case <-f.cancelAllCh:
			// Pending sends on the unbuffered request channels are
			// already blocked in their submitting goroutine; bumping
			// the sequence counters makes any such request stale by
			// the time it is handled.
		case <-f.quit:
			return
		}
	}
}

// AnalyzePosition submits one position for evaluation, using MCTS when
// NumVisits > 1 and a direct session run otherwise. The returned channel
// receives exactly one response.
func (f *Facade) AnalyzePosition(pos *board.Position, opts AnalyzeOptions) <-chan AnalysisResponse {
	opts = opts.withDefaults()
	respCh := make(chan AnalysisResponse, 1)
	if f.disposed.Load() {
		respCh <- AnalysisResponse{Err: apperr.New(apperr.Cancelled, "facade disposed")}
		close(respCh)
		return respCh
	}

	seq := f.seq.Add(1)
	f.latestAnalyzeSeq.Store(seq)
	req := analyzeRequest{seq: seq, pos: clonedPosition(pos, opts), opts: opts, respCh: respCh}

	select {
	case f.analyzeCh <- req:
	case <-f.quit:
		respCh <- AnalysisResponse{Err: apperr.New(apperr.Cancelled, "facade disposed")}
		close(respCh)
	}
	return respCh
}

func clonedPosition(pos *board.Position, opts AnalyzeOptions) *board.Position {
	p := pos.Clone()
	p.Komi = opts.Komi
	if opts.NextToPlay != board.Empty {
		p.NextToPlay = opts.NextToPlay
	}
	if opts.History != nil {
		p.History = opts.History
	}
	if opts.Ko != nil {
		p.Ko = opts.Ko
	}
	return p
}

func (f *Facade) handleAnalyze(req analyzeRequest) {
	if req.seq != f.latestAnalyzeSeq.Load() {
		f.deliverAnalysisCancelled(req.respCh)
		return
	}

	var res *infer.AnalysisResult
	var err error
	if req.opts.NumVisits > 1 {
		res, err = mcts.Search(f.session, req.pos, req.opts.NumVisits)
	} else {
		res, err = f.session.Run(req.pos)
	}

	if req.seq != f.latestAnalyzeSeq.Load() {
		f.deliverAnalysisCancelled(req.respCh)
		return
	}
	if err != nil {
		req.respCh <- AnalysisResponse{Err: apperr.Wrap(apperr.AnalysisError, "facade: analyze failed", err)}
	} else {
		req.respCh <- AnalysisResponse{Result: res}
	}
	close(req.respCh)
}

func (f *Facade) deliverAnalysisCancelled(ch chan AnalysisResponse) {
	ch <- AnalysisResponse{Err: apperr.New(apperr.Cancelled, "superseded by a newer request")}
	close(ch)
}

// AnalyzeBatch submits a batch of positions. Items with NumVisits <= 1
// go through the session's batched run path together; items requesting a
// search are evaluated individually since each grows its own tree.
func (f *Facade) AnalyzeBatch(positions []*board.Position, opts []AnalyzeOptions) <-chan []AnalysisResponse {
	respCh := make(chan []AnalysisResponse, 1)
	if f.disposed.Load() {
		respCh <- nil
		close(respCh)
		return respCh
	}

	items := make([]analyzeItem, len(positions))
	for i, p := range positions {
		o := opts[i].withDefaults()
		items[i] = analyzeItem{pos: clonedPosition(p, o), opts: o}
	}

	seq := f.seq.Add(1)
	f.latestAnalyzeSeq.Store(seq)
	req := batchAnalyzeRequest{seq: seq, items: items, respCh: respCh}

	select {
	case f.batchAnalyzeCh <- req:
	case <-f.quit:
		respCh <- nil
		close(respCh)
	}
	return respCh
}

func (f *Facade) handleBatchAnalyze(req batchAnalyzeRequest) {
	if req.seq != f.latestAnalyzeSeq.Load() {
		req.respCh <- nil
		close(req.respCh)
		return
	}

	out := make([]AnalysisResponse, len(req.items))
	var directPositions []*board.Position
	var directIdx []int
	for i, item := range req.items {
		if item.opts.NumVisits > 1 {
			res, err := mcts.Search(f.session, item.pos, item.opts.NumVisits)
			out[i] = responseFrom(res, err)
			continue
		}
		directPositions = append(directPositions, item.pos)
		directIdx = append(directIdx, i)
	}

	if len(directPositions) > 0 {
		results, err := f.session.RunBatch(directPositions)
		if err != nil {
			for _, idx := range directIdx {
				out[idx] = AnalysisResponse{Err: apperr.Wrap(apperr.AnalysisError, "facade: batch analyze failed", err)}
			}
		} else {
			for k, idx := range directIdx {
				out[idx] = AnalysisResponse{Result: results[k]}
			}
		}
	}

	req.respCh <- out
	close(req.respCh)
}

func responseFrom(res *infer.AnalysisResult, err error) AnalysisResponse {
	if err != nil {
		return AnalysisResponse{Err: apperr.Wrap(apperr.AnalysisError, "facade: search failed", err)}
	}
	return AnalysisResponse{Result: res}
}

// RecognizeBoard detects a board in img and classifies its stones,
// debounced by debounceWindow so a burst of corner-drag frames
// collapses into the single newest request.
func (f *Facade) RecognizeBoard(img image.Image, opts vision.Options) <-chan RecognitionResponse {
	return f.submitRecognize(img, nil, nil, opts)
}

// ReclassifyWithCorners re-runs classification using caller-supplied
// corners instead of detection, also subject to the debounce window.
func (f *Facade) ReclassifyWithCorners(img image.Image, corners vision.Corners, opts vision.Options) <-chan RecognitionResponse {
	return f.submitRecognize(img, &corners, nil, opts)
}

// ReclassifyWithHints re-runs classification using caller-supplied
// corners and calibration hints.
func (f *Facade) ReclassifyWithHints(img image.Image, corners vision.Corners, hints []vision.Hint, opts vision.Options) <-chan RecognitionResponse {
	return f.submitRecognize(img, &corners, hints, opts)
}

func (f *Facade) submitRecognize(img image.Image, corners *vision.Corners, hints []vision.Hint, opts vision.Options) <-chan RecognitionResponse {
	respCh := make(chan RecognitionResponse, 1)
	if f.disposed.Load() {
		respCh <- RecognitionResponse{Err: apperr.New(apperr.Cancelled, "facade disposed")}
		close(respCh)
		return respCh
	}

	seq := f.seq.Add(1)
	f.latestRecognizeSeq.Store(seq)

	time.AfterFunc(debounceWindow, func() {
		if f.latestRecognizeSeq.Load() != seq {
			respCh <- RecognitionResponse{Err: apperr.New(apperr.Cancelled, "superseded by a newer request")}
			close(respCh)
			return
		}
		req := recognizeRequest{seq: seq, img: img, corners: corners, hints: hints, opts: opts, respCh: respCh}
		select {
		case f.recognizeCh <- req:
		case <-f.quit:
			respCh <- RecognitionResponse{Err: apperr.New(apperr.Cancelled, "facade disposed")}
			close(respCh)
		}
	})
	return respCh
}

func (f *Facade) handleRecognize(req recognizeRequest) {
	if req.seq != f.latestRecognizeSeq.Load() {
		req.respCh <- RecognitionResponse{Err: apperr.New(apperr.Cancelled, "superseded by a newer request")}
		close(req.respCh)
		return
	}

	var res *vision.Result
	var err error
	switch {
	case req.hints != nil:
		res, err = vision.ReclassifyWithHints(req.img, *req.corners, req.hints, req.opts)
	case req.corners != nil:
		res, err = vision.ReclassifyWithCorners(req.img, *req.corners, req.opts)
	default:
		res, err = vision.Recognize(req.img, req.opts)
	}

	if req.seq != f.latestRecognizeSeq.Load() {
		req.respCh <- RecognitionResponse{Err: apperr.New(apperr.Cancelled, "superseded by a newer request")}
		close(req.respCh)
		return
	}
	req.respCh <- RecognitionResponse{Result: res, Err: err}
	close(req.respCh)
}

// CancelAll rejects pending requests without tearing down the worker.
func (f *Facade) CancelAll() {
	fresh := f.seq.Add(1)
	f.latestAnalyzeSeq.Store(fresh)
	f.latestRecognizeSeq.Store(fresh)
	select {
	case f.cancelAllCh <- struct{}{}:
	case <-f.quit:
	}
}

// Dispose terminates the worker and rejects all pending requests.
// Idempotent.
func (f *Facade) Dispose() {
	if !f.disposed.CompareAndSwap(false, true) {
		return
	}
	close(f.quit)
	f.wg.Wait()
	f.session.Dispose()
}
