package database

import (
	"sync"
	"sync/atomic"

	"github.com/kozaktomas/facegate/internal/facematch"
)

// Corpus holds the active samples as an immutable, atomically swapped slice.
// Readers never block and always see a complete state; writers are serialized.
//
// Append reuses spare capacity of the current backing array. That is safe because
// every published slice has a length covering only fully written elements, so a
// reader holding an older slice can never index the slot being written.
type Corpus struct {
	mu  sync.Mutex
	cur atomic.Pointer[[]facematch.Sample]
}

// NewCorpus creates a corpus seeded with samples (copied).
func NewCorpus(samples []facematch.Sample) *Corpus {
	c := &Corpus{}
	c.Replace(samples)
	return c
}

// Load returns the current snapshot. Callers must treat it as read-only.
func (c *Corpus) Load() []facematch.Sample {
	p := c.cur.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Len returns the number of active samples.
func (c *Corpus) Len() int {
	return len(c.Load())
}

// Replace swaps in a fresh copy of samples.
func (c *Corpus) Replace(samples []facematch.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make([]facematch.Sample, len(samples))
	copy(next, samples)
	c.cur.Store(&next)
}

// Append publishes one more sample.
func (c *Corpus) Append(s facematch.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := append(c.Load(), s)
	c.cur.Store(&next)
}

// RemoveIdentity drops every sample of identityID and returns how many were removed.
func (c *Corpus) RemoveIdentity(identityID int64) int {
	return c.removeWhere(func(s facematch.Sample) bool { return s.Identity == identityID })
}

// Remove drops a single embedding. Returns false if it was not present.
func (c *Corpus) Remove(embeddingID int64) bool {
	return c.removeWhere(func(s facematch.Sample) bool { return s.EmbeddingID == embeddingID }) > 0
}

// CountIdentity returns the number of samples held for identityID.
func (c *Corpus) CountIdentity(identityID int64) int {
	n := 0
	for _, s := range c.Load() {
		if s.Identity == identityID {
			n++
		}
	}
	return n
}

func (c *Corpus) removeWhere(drop func(facematch.Sample) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.Load()
	next := make([]facematch.Sample, 0, len(cur))
	for _, s := range cur {
		if !drop(s) {
			next = append(next, s)
		}
	}
	removed := len(cur) - len(next)
	if removed > 0 {
		c.cur.Store(&next)
	}
	return removed
}
