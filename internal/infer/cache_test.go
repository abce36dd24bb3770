package infer

import "testing"

func TestResultCacheGetMiss(t *testing.T) {
	c := newResultCache(4)
	if _, ok := c.get(1); ok {
		t.Errorf("get on empty cache should miss")
	}
}

func TestResultCachePutThenGetHits(t *testing.T) {
	c := newResultCache(4)
	want := &AnalysisResult{}
	c.put(7, want)

	got, ok := c.get(7)
	if !ok || got != want {
		t.Errorf("get(7) = %v, %v, want the stored result", got, ok)
	}
}

func TestResultCacheEvictsOldestBeyondCapacity(t *testing.T) {
	c := newResultCache(2)
	c.put(1, &AnalysisResult{})
	c.put(2, &AnalysisResult{})
	c.put(3, &AnalysisResult{})

	if _, ok := c.get(1); ok {
		t.Errorf("oldest entry should have been evicted once capacity was exceeded")
	}
	if _, ok := c.get(2); !ok {
		t.Errorf("entry 2 should still be cached")
	}
	if _, ok := c.get(3); !ok {
		t.Errorf("entry 3 should still be cached")
	}
}

func TestResultCacheZeroCapacityNeverEvicts(t *testing.T) {
	c := newResultCache(0)
	for i := uint64(0); i < 10; i++ {
		c.put(i, &AnalysisResult{})
	}
	for i := uint64(0); i < 10; i++ {
		if _, ok := c.get(i); !ok {
			t.Errorf("entry %d should still be cached with unbounded capacity", i)
		}
	}
}

func TestResultCacheOverwriteDoesNotDuplicateOrder(t *testing.T) {
	c := newResultCache(2)
	first := &AnalysisResult{}
	second := &AnalysisResult{}
	c.put(1, first)
	c.put(1, second)
	c.put(2, &AnalysisResult{})
	c.put(3, &AnalysisResult{})

	if _, ok := c.get(1); ok {
		t.Errorf("entry 1 should have been evicted: overwriting must not refresh its position in eviction order")
	}
	got, ok := c.get(2)
	if !ok || got == nil {
		t.Errorf("entry 2 should still be cached")
	}
}

func TestResultCacheRecordRunTracksBackendRunsOnly(t *testing.T) {
	c := newResultCache(4)
	if c.RunCount() != 0 {
		t.Fatalf("RunCount() initial = %d, want 0", c.RunCount())
	}
	c.recordRun()
	c.recordRun()
	c.put(1, &AnalysisResult{}) // cache writes alone must not bump RunCount
	if c.RunCount() != 2 {
		t.Errorf("RunCount() = %d, want 2", c.RunCount())
	}
}
