package audit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/facematch"
)

func vec(axis int, d float64) []float64 {
	v := make([]float64, 16)
	v[axis] = d
	return v
}

// exactSearcher is a brute-force NeighborSearcher.
type exactSearcher struct {
	corpus []facematch.Sample
	err    error
}

func (e *exactSearcher) NearestActive(ctx context.Context, query []float64, k int) ([]database.Neighbor, error) {
	if e.err != nil {
		return nil, e.err
	}
	var out []database.Neighbor
	for _, s := range e.corpus {
		out = append(out, database.Neighbor{Sample: s, Distance: facematch.EuclideanDistance(query, s.Vector)})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Distance < out[j-1].Distance; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func testCorpus() []facematch.Sample {
	return []facematch.Sample{
		{EmbeddingID: 1, Identity: 10, Vector: vec(0, 1)},
		{EmbeddingID: 2, Identity: 10, Vector: vec(0, 1.1)},
		{EmbeddingID: 3, Identity: 20, Vector: vec(0, 1.3)}, // 0.2 from sample 2
		{EmbeddingID: 4, Identity: 30, Vector: vec(1, 1)},
		{EmbeddingID: 5, Identity: 40, Vector: vec(1, 1.45)}, // 0.45 from sample 4
		{EmbeddingID: 6, Identity: 50, Vector: vec(5, 9)},
	}
}

func TestConflicts(t *testing.T) {
	corpus := testCorpus()
	var calls atomic.Int32

	got, err := New(&exactSearcher{corpus: corpus}, 0.5, WithWorkers(2)).
		Conflicts(context.Background(), corpus, func() { calls.Add(1) })
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, Conflict{IdentityA: 10, IdentityB: 20, EmbeddingA: 2, EmbeddingB: 3}, withoutDistance(got[0]))
	assert.InDelta(t, 0.2, got[0].Distance, 1e-9)
	assert.Equal(t, int64(30), got[1].IdentityA)
	assert.Equal(t, int64(40), got[1].IdentityB)
	assert.InDelta(t, 0.45, got[1].Distance, 1e-9)
	assert.Equal(t, int32(len(corpus)), calls.Load())
}

func TestConflicts_WithHNSWIndex(t *testing.T) {
	corpus := testCorpus()

	got, err := New(IndexCorpus(corpus), 0.5).Conflicts(context.Background(), corpus, nil)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, int64(10), got[0].IdentityA)
	assert.Equal(t, int64(20), got[0].IdentityB)
}

func TestConflicts_ThresholdIsExclusive(t *testing.T) {
	corpus := []facematch.Sample{
		{EmbeddingID: 1, Identity: 1, Vector: vec(0, 1)},
		{EmbeddingID: 2, Identity: 2, Vector: vec(0, 1.5)},
	}

	got, err := New(&exactSearcher{corpus: corpus}, 0.5).Conflicts(context.Background(), corpus, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestConflicts_SearchError(t *testing.T) {
	boom := errors.New("index gone")

	_, err := New(&exactSearcher{err: boom}, 0.5).Conflicts(context.Background(), testCorpus(), nil)

	assert.ErrorIs(t, err, boom)
}

func TestConflicts_EmptyCorpus(t *testing.T) {
	got, err := New(&exactSearcher{}, 0.5).Conflicts(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func withoutDistance(c Conflict) Conflict {
	c.Distance = 0
	return c
}
