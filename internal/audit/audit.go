// Package audit finds pairs of different identities whose enrolled faces are close
// enough to be confused. Results are approximate and never feed match decisions.
package audit

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/facegate/internal/constants"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/facematch"
	"github.com/kozaktomas/facegate/internal/logging"
)

// NeighborSearcher finds the active samples nearest to a query, nearest first.
type NeighborSearcher interface {
	NearestActive(ctx context.Context, query []float64, k int) ([]database.Neighbor, error)
}

// Conflict is the closest pair of samples between two identities. IdentityA < IdentityB.
type Conflict struct {
	IdentityA  int64   `json:"identity_a"`
	IdentityB  int64   `json:"identity_b"`
	EmbeddingA int64   `json:"embedding_a"`
	EmbeddingB int64   `json:"embedding_b"`
	Distance   float64 `json:"distance"`
}

type pairKey struct{ a, b int64 }

// Auditor scans a corpus for conflicts.
type Auditor struct {
	searcher  NeighborSearcher
	threshold float64
	neighbors int
	workers   int
	logger    *zap.Logger
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithNeighbors sets how many neighbors are inspected per sample.
func WithNeighbors(k int) Option {
	return func(a *Auditor) {
		if k > 0 {
			a.neighbors = k
		}
	}
}

// WithWorkers bounds concurrent searches (default GOMAXPROCS).
func WithWorkers(n int) Option {
	return func(a *Auditor) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Auditor) { a.logger = logging.OrNop(l) }
}

// New creates an auditor reporting pairs strictly closer than threshold.
func New(searcher NeighborSearcher, threshold float64, opts ...Option) *Auditor {
	a := &Auditor{
		searcher:  searcher,
		threshold: threshold,
		neighbors: constants.DefaultAuditNeighbors,
		workers:   runtime.GOMAXPROCS(0),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IndexCorpus builds an in-memory HNSW searcher over corpus.
func IndexCorpus(corpus []facematch.Sample) *database.HNSWIndex {
	idx := database.NewHNSWIndex()
	idx.Build(corpus)
	return idx
}

// Conflicts searches the neighbors of every sample in corpus and returns one conflict
// per identity pair, closest first. progress, if set, is called once per sample.
func (a *Auditor) Conflicts(ctx context.Context, corpus []facematch.Sample, progress func()) ([]Conflict, error) {
	var (
		mu   sync.Mutex
		best = make(map[pairKey]Conflict)
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for _, s := range corpus {
		g.Go(func() error {
			// +1 because the sample usually finds itself first
			neighbors, err := a.searcher.NearestActive(ctx, s.Vector, a.neighbors+1)
			if err != nil {
				return fmt.Errorf("searching neighbors of embedding %d: %w", s.EmbeddingID, err)
			}

			mu.Lock()
			defer mu.Unlock()
			for _, n := range neighbors {
				if n.Sample.Identity == s.Identity || n.Distance >= a.threshold {
					continue
				}
				c := newConflict(s, n)
				key := pairKey{c.IdentityA, c.IdentityB}
				if prev, ok := best[key]; !ok || closer(c, prev) {
					best[key] = c
				}
			}
			if progress != nil {
				progress()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Conflict, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return closer(out[i], out[j]) })

	a.logger.Info("audit finished", zap.Int("samples", len(corpus)), zap.Int("conflicts", len(out)))
	return out, nil
}

func newConflict(s facematch.Sample, n database.Neighbor) Conflict {
	c := Conflict{
		IdentityA:  s.Identity,
		IdentityB:  n.Sample.Identity,
		EmbeddingA: s.EmbeddingID,
		EmbeddingB: n.Sample.EmbeddingID,
		Distance:   n.Distance,
	}
	if c.IdentityA > c.IdentityB {
		c.IdentityA, c.IdentityB = c.IdentityB, c.IdentityA
		c.EmbeddingA, c.EmbeddingB = c.EmbeddingB, c.EmbeddingA
	}
	return c
}

// closer orders by distance, then by identity and embedding ids so results are stable.
func closer(x, y Conflict) bool {
	if x.Distance != y.Distance {
		return x.Distance < y.Distance
	}
	if x.IdentityA != y.IdentityA {
		return x.IdentityA < y.IdentityA
	}
	if x.IdentityB != y.IdentityB {
		return x.IdentityB < y.IdentityB
	}
	if x.EmbeddingA != y.EmbeddingA {
		return x.EmbeddingA < y.EmbeddingA
	}
	return x.EmbeddingB < y.EmbeddingB
}
