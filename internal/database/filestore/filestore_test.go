package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/facegate/internal/database"
)

func newEmbedding(identity int64, x float64) database.NewEmbedding {
	return database.NewEmbedding{
		IdentityID:    identity,
		Vector:        []float64{x, 1, 2},
		QualityScore:  database.Score(75),
		CaptureMethod: database.CaptureRegistration,
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.snapshot")
	ctx := context.Background()

	s, err := Open(path, 3)
	require.NoError(t, err)
	id1, err := s.Add(ctx, newEmbedding(1, 0.1))
	require.NoError(t, err)
	_, err = s.Add(ctx, newEmbedding(2, 0.2))
	require.NoError(t, err)
	n, err := s.DeactivateAll(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, s.Close())

	reopened, err := Open(path, 3)
	require.NoError(t, err)
	defer reopened.Close()

	all, err := reopened.AllActive(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, id1, all[0].EmbeddingID)

	row, err := reopened.Get(ctx, id1)
	require.NoError(t, err)
	require.NotNil(t, row.QualityScore)
	assert.Equal(t, 75.0, *row.QualityScore)

	id3, err := reopened.Add(ctx, newEmbedding(3, 0.3))
	require.NoError(t, err)
	assert.Greater(t, id3, id1, "ids keep increasing after reopen")
}

func TestStore_MissingFileStartsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "absent"), 3)
	require.NoError(t, err)
	defer s.Close()

	all, err := s.AllActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_CorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad")
	require.NoError(t, os.WriteFile(path, []byte("not zstd"), 0o600))

	_, err := Open(path, 3)
	assert.Error(t, err)
}

func TestStore_FailedWriteLeavesStateUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "store.snapshot")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	ctx := context.Background()

	s, err := Open(path, 3)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Add(ctx, newEmbedding(1, 0.1))
	require.NoError(t, err)

	// Replace the parent directory with a file so the atomic rename cannot succeed.
	require.NoError(t, os.RemoveAll(filepath.Dir(path)))
	require.NoError(t, os.WriteFile(filepath.Dir(path), []byte("x"), 0o600))

	_, err = s.Add(ctx, newEmbedding(2, 0.2))
	require.Error(t, err)

	all, _ := s.AllActive(ctx)
	assert.Len(t, all, 1)
	count, _ := s.CountActive(ctx, 2)
	assert.Equal(t, 0, count)

	_, err = s.DeactivateAll(ctx, 1)
	require.Error(t, err)
	count, _ = s.CountActive(ctx, 1)
	assert.Equal(t, 1, count)
}

func TestStore_DeactivateSingle(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "store"), 3)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	id, err := s.Add(ctx, newEmbedding(1, 0.1))
	require.NoError(t, err)

	ok, err := s.Deactivate(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Deactivate(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, 404)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestStore_AddUnlessConflictPersistsNothingOnConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.snapshot")
	ctx := context.Background()

	s, err := Open(path, 3)
	require.NoError(t, err)
	_, err = s.Add(ctx, newEmbedding(1, 0.1))
	require.NoError(t, err)

	id, conflict, err := s.AddUnlessConflict(ctx, newEmbedding(2, 0.2), 0.5)
	require.NoError(t, err)
	assert.Zero(t, id)
	require.NotNil(t, conflict)
	assert.Equal(t, int64(1), conflict.Identity)

	id, conflict, err = s.AddUnlessConflict(ctx, newEmbedding(2, 5), 0.5)
	require.NoError(t, err)
	assert.Nil(t, conflict)
	require.NoError(t, s.Close())

	reopened, err := Open(path, 3)
	require.NoError(t, err)
	defer reopened.Close()

	all, err := reopened.AllActive(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, id, all[1].EmbeddingID)
	assert.Equal(t, 5.0, all[1].Vector[0])
}
