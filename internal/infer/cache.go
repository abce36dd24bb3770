package infer

// resultCache is a fingerprint-keyed cache of AnalysisResult with
// first-in-first-out eviction once capacity is exceeded; cache hits skip
// featurization and inference entirely. runCount is incremented only by
// actual backend runs, not cache hits, so tests can assert a second
// identical analysis performs no inference.
type resultCache struct {
	capacity int
	order    []uint64
	entries  map[uint64]*AnalysisResult
	runCount int
}

func newResultCache(capacity int) *resultCache {
	return &resultCache{
		capacity: capacity,
		entries:  make(map[uint64]*AnalysisResult),
	}
}

func (c *resultCache) get(fp uint64) (*AnalysisResult, bool) {
	r, ok := c.entries[fp]
	return r, ok
}

func (c *resultCache) put(fp uint64, r *AnalysisResult) {
	if _, exists := c.entries[fp]; exists {
		c.entries[fp] = r
		return
	}
	c.entries[fp] = r
	c.order = append(c.order, fp)
	if c.capacity > 0 {
		for len(c.order) > c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
	}
}

func (c *resultCache) recordRun() { c.runCount++ }

// RunCount returns the number of backend runs performed since the cache
// (equivalently, the owning Session) was created. Exposed for tests.
func (c *resultCache) RunCount() int { return c.runCount }
