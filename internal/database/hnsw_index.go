package database

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/facegate/internal/facematch"
)

// Neighbor is a corpus sample with its exact distance to a query.
type Neighbor struct {
	Sample   facematch.Sample
	Distance float64
}

// HNSWIndex wraps the HNSW graph for approximate nearest-neighbor search over samples.
// The graph works in float32; distances reported back are exact float64 Euclidean.
type HNSWIndex struct {
	graph   *hnsw.Graph[int64]
	samples map[int64]facematch.Sample // keyed by embedding ID
	mu      sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		samples: make(map[int64]facematch.Sample),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.EuclideanDistance
	return g
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

// Build replaces the index content with samples.
func (h *HNSWIndex) Build(samples []facematch.Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.samples = make(map[int64]facematch.Sample, len(samples))
	if len(samples) == 0 {
		h.graph = nil
		return
	}

	g := newGraph()
	for _, s := range samples {
		if len(s.Vector) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(s.EmbeddingID, toFloat32(s.Vector)))
		h.samples[s.EmbeddingID] = s
	}
	h.graph = g
}

// Add inserts a single sample.
func (h *HNSWIndex) Add(s facematch.Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(s.Vector) == 0 {
		return
	}
	if h.graph == nil {
		h.graph = newGraph()
	}
	h.graph.Add(hnsw.MakeNode(s.EmbeddingID, toFloat32(s.Vector)))
	h.samples[s.EmbeddingID] = s
}

// Delete hides an embedding from future searches.
func (h *HNSWIndex) Delete(embeddingID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	// The node stays in the graph; lookups filter on the samples map.
	delete(h.samples, embeddingID)
}

// Len returns the number of searchable samples.
func (h *HNSWIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.samples)
}

// Search returns up to k nearest samples ordered by exact distance.
func (h *HNSWIndex) Search(query []float64, k int) ([]Neighbor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, errors.New("index not initialized")
	}
	if k <= 0 {
		return nil, nil
	}

	nodes := h.graph.Search(toFloat32(query), k*HNSWSearchMultiplier)
	out := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		s, ok := h.samples[n.Key]
		if !ok || len(s.Vector) != len(query) {
			continue
		}
		out = append(out, Neighbor{Sample: s, Distance: facematch.EuclideanDistance(query, s.Vector)})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// NearestActive adapts Search to the context-aware neighbor lookup used by audits.
func (h *HNSWIndex) NearestActive(ctx context.Context, query []float64, k int) ([]Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.Search(query, k)
}
