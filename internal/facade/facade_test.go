package facade

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weiqilab/katacore/internal/apperr"
	"github.com/weiqilab/katacore/internal/board"
	"github.com/weiqilab/katacore/internal/infer"
)

type fakeSession struct {
	mu        sync.Mutex
	runs      int
	runDelay  time.Duration
	runErr    error
	disposed  bool
	lastBatch int
}

func (s *fakeSession) Run(pos *board.Position) (*infer.AnalysisResult, error) {
	if s.runDelay > 0 {
		time.Sleep(s.runDelay)
	}
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	if s.runErr != nil {
		return nil, s.runErr
	}
	return &infer.AnalysisResult{WinRate: 0.5, ScoreLead: pos.Komi}, nil
}

func (s *fakeSession) RunBatch(positions []*board.Position) ([]*infer.AnalysisResult, error) {
	s.mu.Lock()
	s.lastBatch = len(positions)
	s.mu.Unlock()
	out := make([]*infer.AnalysisResult, len(positions))
	for i, p := range positions {
		out[i] = &infer.AnalysisResult{WinRate: 0.5, ScoreLead: p.Komi}
	}
	return out, nil
}

func (s *fakeSession) Dispose() {
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()
}

func newTestPosition() *board.Position {
	return board.NewPosition(9, board.Black, 7.5)
}

func TestAnalyzePositionReturnsResult(t *testing.T) {
	fs := &fakeSession{}
	f := newFacade(fs, nil)
	defer f.Dispose()

	resp := <-f.AnalyzePosition(newTestPosition(), AnalyzeOptions{Komi: 6.5})
	require.NoError(t, resp.Err)
	require.NotNil(t, resp.Result)
	require.InDelta(t, 6.5, resp.Result.ScoreLead, 1e-9)
}

func TestAnalyzePositionPropagatesSessionError(t *testing.T) {
	fs := &fakeSession{runErr: errors.New("boom")}
	f := newFacade(fs, nil)
	defer f.Dispose()

	resp := <-f.AnalyzePosition(newTestPosition(), AnalyzeOptions{})
	require.Error(t, resp.Err)
}

func TestAnalyzeBatchUsesRunBatchForDirectItems(t *testing.T) {
	fs := &fakeSession{}
	f := newFacade(fs, nil)
	defer f.Dispose()

	positions := []*board.Position{newTestPosition(), newTestPosition()}
	opts := []AnalyzeOptions{{Komi: 1}, {Komi: 2}}
	resp := <-f.AnalyzeBatch(positions, opts)
	require.Len(t, resp, 2)
	require.NoError(t, resp[0].Err)
	require.NoError(t, resp[1].Err)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.Equal(t, 2, fs.lastBatch)
}

func TestDisposeRejectsSubsequentRequests(t *testing.T) {
	fs := &fakeSession{}
	f := newFacade(fs, nil)
	f.Dispose()

	resp := <-f.AnalyzePosition(newTestPosition(), AnalyzeOptions{})
	require.True(t, apperr.IsCancelled(resp.Err))

	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.True(t, fs.disposed)
}

func TestDisposeIsIdempotent(t *testing.T) {
	fs := &fakeSession{}
	f := newFacade(fs, nil)
	f.Dispose()
	require.NotPanics(t, f.Dispose)
}

func TestCancelAllRejectsStaleAnalyzeResponse(t *testing.T) {
	fs := &fakeSession{runDelay: 100 * time.Millisecond}
	f := newFacade(fs, nil)
	defer f.Dispose()

	respCh := f.AnalyzePosition(newTestPosition(), AnalyzeOptions{})
	// Give the worker time to pick the request up before cancelling, so
	// the post-run staleness check is what rejects it.
	time.Sleep(10 * time.Millisecond)
	f.CancelAll()

	resp := <-respCh
	require.True(t, apperr.IsCancelled(resp.Err))
}

func TestSecondAnalyzeWhileFirstInFlightSupersedesFirst(t *testing.T) {
	// The delay keeps the first request running while the second is
	// submitted, so the post-run staleness check rejects the first.
	fs := &fakeSession{runDelay: 50 * time.Millisecond}
	f := newFacade(fs, nil)
	defer f.Dispose()

	ch1 := f.AnalyzePosition(newTestPosition(), AnalyzeOptions{Komi: 1})
	ch2 := f.AnalyzePosition(newTestPosition(), AnalyzeOptions{Komi: 2})

	resp1 := <-ch1
	resp2 := <-ch2
	require.True(t, apperr.IsCancelled(resp1.Err))
	require.NoError(t, resp2.Err)
	require.InDelta(t, 2.0, resp2.Result.ScoreLead, 1e-9)
}
