package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/facegate/internal/facematch"
)

func axisSample(id, identity int64, axis int, d float64) facematch.Sample {
	v := make([]float64, 8)
	v[axis] = d
	return facematch.Sample{EmbeddingID: id, Identity: identity, Vector: v}
}

func TestHNSWIndex_SearchOrdersByDistance(t *testing.T) {
	idx := NewHNSWIndex()
	idx.Build([]facematch.Sample{
		axisSample(1, 10, 0, 0.9),
		axisSample(2, 20, 1, 0.1),
		axisSample(3, 30, 2, 0.5),
	})

	got, err := idx.Search(make([]float64, 8), 2)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].Sample.EmbeddingID)
	assert.Equal(t, int64(3), got[1].Sample.EmbeddingID)
	assert.InDelta(t, 0.1, got[0].Distance, 1e-9)
}

func TestHNSWIndex_DeleteHidesSample(t *testing.T) {
	idx := NewHNSWIndex()
	idx.Build([]facematch.Sample{axisSample(1, 10, 0, 0.1), axisSample(2, 20, 1, 0.2)})

	idx.Delete(1)
	got, err := idx.Search(make([]float64, 8), 2)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].Sample.EmbeddingID)
	assert.Equal(t, 1, idx.Len())
}

func TestHNSWIndex_AddToEmpty(t *testing.T) {
	idx := NewHNSWIndex()
	_, err := idx.Search(make([]float64, 8), 1)
	assert.Error(t, err)

	idx.Add(axisSample(5, 50, 3, 0.4))
	got, err := idx.NearestActive(context.Background(), make([]float64, 8), 1)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(50), got[0].Sample.Identity)
}

func TestHNSWIndex_NearestActiveHonorsCancellation(t *testing.T) {
	idx := NewHNSWIndex()
	idx.Add(axisSample(1, 10, 0, 0.1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.NearestActive(ctx, make([]float64, 8), 1)
	assert.ErrorIs(t, err, context.Canceled)
}
