package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/facematch"
)

// EmbeddingDim is the vector width fixed by the face_embeddings schema.
const EmbeddingDim = 128

const (
	// enrollLockKey serializes duplicate checks across processes sharing the database.
	enrollLockKey = 0x656e726c

	// float32Slack widens the pgvector prefilter past float32 rounding of the stored vectors.
	float32Slack = 1e-3
)

// EmbeddingRepository provides PostgreSQL-backed embedding storage.
// Active samples are cached in memory so matching never waits on the database;
// the cache is refreshed after cacheTTL when one is set.
type EmbeddingRepository struct {
	pool     *Pool
	logger   *zap.Logger
	cacheTTL time.Duration

	writeMu  sync.Mutex // serializes writes and cache loads
	corpus   *database.Corpus
	loadedAt atomic.Int64 // unix nanos of the last cache load, 0 when never loaded
	loads    singleflight.Group
}

// NewEmbeddingRepository creates a new PostgreSQL embedding repository.
func NewEmbeddingRepository(pool *Pool, cacheTTL time.Duration, logger *zap.Logger) *EmbeddingRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingRepository{
		pool:     pool,
		logger:   logger,
		cacheTTL: cacheTTL,
		corpus:   database.NewCorpus(nil),
	}
}

func toVector(v []float64) pgvector.Vector {
	f := make([]float32, len(v))
	for i, x := range v {
		f[i] = float32(x)
	}
	return pgvector.NewVector(f)
}

func (r *EmbeddingRepository) cacheFresh() bool {
	loaded := r.loadedAt.Load()
	if loaded == 0 {
		return false
	}
	return r.cacheTTL <= 0 || time.Since(time.Unix(0, loaded)) < r.cacheTTL
}

// AllActive returns the cached snapshot, loading it from the database when stale.
func (r *EmbeddingRepository) AllActive(ctx context.Context) ([]facematch.Sample, error) {
	if r.cacheFresh() {
		return r.corpus.Load(), nil
	}

	_, err, _ := r.loads.Do("corpus", func() (any, error) {
		return nil, r.reload(ctx)
	})
	if err != nil {
		return nil, err
	}
	return r.corpus.Load(), nil
}

// reload refreshes the cached snapshot from the database.
func (r *EmbeddingRepository) reload(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	rows, err := r.pool.Query(ctx, `
		SELECT id, identity_id, vector
		FROM face_embeddings
		WHERE is_active
		ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("query active embeddings: %w", err)
	}
	defer rows.Close()

	var samples []facematch.Sample
	for rows.Next() {
		var s facematch.Sample
		var vec pq.Float64Array
		if err := rows.Scan(&s.EmbeddingID, &s.Identity, &vec); err != nil {
			return fmt.Errorf("scan embedding: %w", err)
		}
		s.Vector = []float64(vec)
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate embeddings: %w", err)
	}

	r.corpus.Replace(samples)
	r.loadedAt.Store(time.Now().UnixNano())
	r.logger.Debug("loaded embedding corpus", zap.Int("samples", len(samples)))
	return nil
}

// CountActive returns the number of active embeddings for an identity.
func (r *EmbeddingRepository) CountActive(ctx context.Context, identityID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM face_embeddings WHERE identity_id = $1 AND is_active", identityID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// Get returns a single embedding row.
func (r *EmbeddingRepository) Get(ctx context.Context, embeddingID int64) (*database.StoredEmbedding, error) {
	var e database.StoredEmbedding
	var vec pq.Float64Array
	var quality sql.NullFloat64
	var method string

	err := r.pool.QueryRow(ctx, `
		SELECT id, identity_id, vector, quality_score, capture_method, created_at, is_active
		FROM face_embeddings
		WHERE id = $1
	`, embeddingID).Scan(&e.ID, &e.IdentityID, &vec, &quality, &method, &e.CreatedAt, &e.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	e.Vector = []float64(vec)
	e.CaptureMethod = database.CaptureMethod(method)
	if quality.Valid {
		e.QualityScore = &quality.Float64
	}
	return &e, nil
}

// Add stores a new active embedding.
func (r *EmbeddingRepository) Add(ctx context.Context, n database.NewEmbedding) (int64, error) {
	if err := n.Validate(EmbeddingDim); err != nil {
		return 0, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	id, createdAt, err := insertEmbedding(ctx, tx, n)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit embedding: %w", err)
	}

	r.cacheAppend(n.Stored(id, createdAt))
	return id, nil
}

// AddUnlessConflict holds a transaction-scoped advisory lock across the duplicate
// check and the insert, so enrollments from other processes wait for it too.
func (r *EmbeddingRepository) AddUnlessConflict(ctx context.Context, n database.NewEmbedding, threshold float64) (int64, *facematch.Candidate, error) {
	if err := n.Validate(EmbeddingDim); err != nil {
		return 0, nil, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", enrollLockKey); err != nil {
		return 0, nil, fmt.Errorf("acquire enrollment lock: %w", err)
	}

	near, err := activeWithin(ctx, tx, n.Vector, threshold)
	if err != nil {
		return 0, nil, err
	}
	if c := database.NearestConflict(n.Vector, near, n.IdentityID, threshold); c != nil {
		return 0, c, nil
	}

	id, createdAt, err := insertEmbedding(ctx, tx, n)
	if err != nil {
		return 0, nil, err
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit embedding: %w", err)
	}

	r.cacheAppend(n.Stored(id, createdAt))
	return id, nil, nil
}

// activeWithin returns, in id order, every active sample whose float32 distance to
// query is under threshold plus slack. A sequential scan keeps the result exact;
// the nearest sample under threshold is always among the rows returned.
func activeWithin(ctx context.Context, tx *sql.Tx, query []float64, threshold float64) ([]facematch.Sample, error) {
	if _, err := tx.ExecContext(ctx, "SET LOCAL enable_indexscan = off"); err != nil {
		return nil, fmt.Errorf("disable index scan: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, identity_id, vector
		FROM face_embeddings
		WHERE is_active AND embedding <-> $1 < $2
		ORDER BY id
	`, toVector(query), threshold+float32Slack)
	if err != nil {
		return nil, fmt.Errorf("query nearby embeddings: %w", err)
	}
	defer rows.Close()

	var out []facematch.Sample
	for rows.Next() {
		var s facematch.Sample
		var vec pq.Float64Array
		if err := rows.Scan(&s.EmbeddingID, &s.Identity, &vec); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		s.Vector = []float64(vec)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return out, nil
}

func insertEmbedding(ctx context.Context, tx *sql.Tx, n database.NewEmbedding) (int64, time.Time, error) {
	var quality sql.NullFloat64
	if n.QualityScore != nil {
		quality = sql.NullFloat64{Float64: *n.QualityScore, Valid: true}
	}

	var id int64
	var createdAt time.Time
	err := tx.QueryRowContext(ctx, `
		INSERT INTO face_embeddings (identity_id, vector, embedding, quality_score, capture_method)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, n.IdentityID, pq.Float64Array(n.Vector), toVector(n.Vector), quality, string(n.CaptureMethod)).Scan(&id, &createdAt)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("insert embedding: %w", err)
	}
	return id, createdAt, nil
}

// cacheAppend adds a committed row to the cached snapshot once it has been loaded.
func (r *EmbeddingRepository) cacheAppend(row database.StoredEmbedding) {
	if r.loadedAt.Load() != 0 {
		r.corpus.Append(row.Sample())
	}
}

// DeactivateAll soft-deletes every active embedding of an identity.
func (r *EmbeddingRepository) DeactivateAll(ctx context.Context, identityID int64) (int, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	res, err := r.pool.Exec(ctx,
		"UPDATE face_embeddings SET is_active = FALSE WHERE identity_id = $1 AND is_active", identityID)
	if err != nil {
		return 0, fmt.Errorf("deactivate identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	r.corpus.RemoveIdentity(identityID)
	return int(n), nil
}

// Deactivate soft-deletes one embedding.
func (r *EmbeddingRepository) Deactivate(ctx context.Context, embeddingID int64) (bool, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	res, err := r.pool.Exec(ctx,
		"UPDATE face_embeddings SET is_active = FALSE WHERE id = $1 AND is_active", embeddingID)
	if err != nil {
		return false, fmt.Errorf("deactivate embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	r.corpus.Remove(embeddingID)
	return n > 0, nil
}

// NearestActive returns the k active embeddings closest to query using the pgvector HNSW index.
// Distances are recomputed exactly from the stored float64 vectors.
func (r *EmbeddingRepository) NearestActive(ctx context.Context, query []float64, k int) ([]database.Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}

	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, fmt.Errorf("set ef_search: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, identity_id, vector
		FROM face_embeddings
		WHERE is_active
		ORDER BY embedding <-> $1
		LIMIT $2
	`, toVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("query nearest embeddings: %w", err)
	}
	defer rows.Close()

	var out []database.Neighbor
	for rows.Next() {
		var s facematch.Sample
		var vec pq.Float64Array
		if err := rows.Scan(&s.EmbeddingID, &s.Identity, &vec); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		s.Vector = []float64(vec)
		out = append(out, database.Neighbor{Sample: s, Distance: facematch.EuclideanDistance(query, s.Vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate neighbors: %w", err)
	}
	return out, nil
}
