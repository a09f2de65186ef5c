package ir

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// CachingRun wraps a Run so that repeated Reanalyze calls against the
// same incoming state are served from a bounded LRU instead of
// re-invoking the engine. The forward walker (§4.D) can pop the same
// run off its worklist many times while a loop is below the re-scan
// cap, typically under the very same state it was last analyzed with;
// this makes those re-pops cheap without changing the observable
// result, since Reanalyze is required to be pure (§4.A contract).
type CachingRun struct {
	inner Run
	cache *lru.Cache
}

// NewCachingRun wraps run with a cache shared across an entire forward
// walk (the caller constructs one cache and wraps every run popped off
// the worklist with it).
func NewCachingRun(run Run, cache *lru.Cache) *CachingRun {
	return &CachingRun{inner: run, cache: cache}
}

// NewReanalyzeCache builds the shared LRU used by NewCachingRun. size
// bounds the number of distinct (run, state) reanalyses retained.
func NewReanalyzeCache(size int) (*lru.Cache, error) {
	return lru.New(size)
}

func (c *CachingRun) Addr() RunAddr      { return c.inner.Addr() }
func (c *CachingRun) Refs() []Reference  { return c.inner.Refs() }
func (c *CachingRun) Exits() []Exit      { return c.inner.Exits() }
func (c *CachingRun) isRun()             {}

type reanalyzeKey struct {
	run   RunAddr
	state State
}

func (c *CachingRun) Reanalyze(state State) (Run, error) {
	if c.cache == nil {
		return c.inner.Reanalyze(state)
	}
	key := reanalyzeKey{run: c.inner.Addr(), state: state}
	if v, ok := c.cache.Get(key); ok {
		cached := v.(cachedResult)
		return cached.run, cached.err
	}
	run, err := c.inner.Reanalyze(state)
	c.cache.Add(key, cachedResult{run: run, err: err})
	return run, err
}

type cachedResult struct {
	run Run
	err error
}

// Unwrap returns the run this cache wraps, for callers that need to
// compare identity against the pre-wrap run (e.g. the symbolic-op set,
// which is keyed by the run popped off the worklist, not by its cache
// wrapper).
func (c *CachingRun) Unwrap() Run { return c.inner }

func (k reanalyzeKey) String() string {
	return fmt.Sprintf("%d/%p", k.run, k.state)
}
