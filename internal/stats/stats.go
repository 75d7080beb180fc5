// Package stats collects the small per-run pass counters the pipeline
// prints at the end of a compilation (instructions sunk, stores eliminated,
// loops vectorized, guards removed, and so on) — the same kind of running
// tally the teacher's OptimizationPipeline prints as it walks its stages,
// generalized to a named-counter map so every pass can contribute without
// the pipeline knowing its internals.
package stats

import "sync"

// Counters is a mutex-guarded map[string]int64, safe to share across the
// worker goroutines a PassManager may run passes on concurrently (§5).
type Counters struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewCounters returns an empty counter set.
func NewCounters() *Counters {
	return &Counters{values: make(map[string]int64)}
}

// Inc increments the named counter by one.
func (c *Counters) Inc(name string) { c.Add(name, 1) }

// Add increments the named counter by delta (delta may be negative).
func (c *Counters) Add(name string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name] += delta
}

// Get returns the current value of the named counter.
func (c *Counters) Get(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[name]
}

// Snapshot returns a copy of every counter recorded so far, safe for the
// caller to range over without holding the lock.
func (c *Counters) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}
