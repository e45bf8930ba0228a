// Package filestore keeps the embedding store in a single zstd-compressed gob file.
// Every write rewrites the file atomically before the in-memory state changes, so a
// failed write leaves both the file and the served snapshot untouched.
package filestore

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/renameio"
	"github.com/klauspost/compress/zstd"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/facematch"
)

const snapshotVersion = 1

type fileSnapshot struct {
	Version int
	NextID  int64
	SavedAt time.Time
	Rows    []database.StoredEmbedding
}

// Store is a file-backed database.EmbeddingWriter.
type Store struct {
	path string
	dim  int
	now  func() time.Time

	enc *zstd.Encoder
	dec *zstd.Decoder

	mu     sync.RWMutex // held for writing across persist + swap
	rows   []database.StoredEmbedding
	nextID int64
	corpus *database.Corpus
}

// Open loads path, or starts empty when the file does not exist yet.
func Open(path string, dim int) (*Store, error) {
	if path == "" {
		return nil, errors.New("store file path is required")
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	s := &Store{path: path, dim: dim, now: time.Now, enc: enc, dec: dec}

	snap, err := s.read()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.rows = snap.Rows
	s.nextID = snap.NextID

	var active []facematch.Sample
	for _, row := range s.rows {
		if row.Active {
			active = append(active, row.Sample())
		}
	}
	s.corpus = database.NewCorpus(active)
	return s, nil
}

// Close releases the compression codecs.
func (s *Store) Close() error {
	if s.enc != nil {
		s.enc.Close()
	}
	if s.dec != nil {
		s.dec.Close()
	}
	return nil
}

func (s *Store) read() (fileSnapshot, error) {
	compressed, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return fileSnapshot{Version: snapshotVersion}, nil
	}
	if err != nil {
		return fileSnapshot{}, fmt.Errorf("reading store file: %w", err)
	}

	raw, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return fileSnapshot{}, fmt.Errorf("decompressing store file: %w", err)
	}

	var snap fileSnapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snap); err != nil {
		return fileSnapshot{}, fmt.Errorf("decoding store file: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fileSnapshot{}, fmt.Errorf("unsupported store file version %d", snap.Version)
	}
	return snap, nil
}

func (s *Store) persist(rows []database.StoredEmbedding, nextID int64) error {
	var buf bytes.Buffer
	snap := fileSnapshot{Version: snapshotVersion, NextID: nextID, SavedAt: s.now(), Rows: rows}
	if err := gob.NewEncoder(&buf).Encode(&snap); err != nil {
		return fmt.Errorf("encoding store file: %w", err)
	}
	if err := renameio.WriteFile(s.path, s.enc.EncodeAll(buf.Bytes(), nil), 0o600); err != nil {
		return fmt.Errorf("writing store file: %w", err)
	}
	return nil
}

// AllActive returns the current snapshot without taking any lock.
func (s *Store) AllActive(ctx context.Context) ([]facematch.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.corpus.Load(), nil
}

// CountActive returns the number of active embeddings for an identity.
func (s *Store) CountActive(ctx context.Context, identityID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.corpus.CountIdentity(identityID), nil
}

// Get returns a copy of one row.
func (s *Store) Get(ctx context.Context, embeddingID int64) (*database.StoredEmbedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.rows {
		if s.rows[i].ID == embeddingID {
			cp := s.rows[i]
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

// Add persists a new active embedding.
func (s *Store) Add(ctx context.Context, n database.NewEmbedding) (int64, error) {
	if err := n.Validate(s.dim); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.addLocked(n)
}

// AddUnlessConflict checks the snapshot and persists n under the write lock.
func (s *Store) AddUnlessConflict(ctx context.Context, n database.NewEmbedding, threshold float64) (int64, *facematch.Candidate, error) {
	if err := n.Validate(s.dim); err != nil {
		return 0, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if c := database.NearestConflict(n.Vector, s.corpus.Load(), n.IdentityID, threshold); c != nil {
		return 0, c, nil
	}
	id, err := s.addLocked(n)
	return id, nil, err
}

func (s *Store) addLocked(n database.NewEmbedding) (int64, error) {
	id := s.nextID + 1
	row := n.Stored(id, s.now())
	next := make([]database.StoredEmbedding, len(s.rows), len(s.rows)+1)
	copy(next, s.rows)
	next = append(next, row)

	if err := s.persist(next, id); err != nil {
		return 0, err
	}

	s.rows = next
	s.nextID = id
	s.corpus.Append(row.Sample())
	return id, nil
}

// DeactivateAll soft-deletes every active embedding of an identity.
func (s *Store) DeactivateAll(ctx context.Context, identityID int64) (int, error) {
	return s.deactivateWhere(ctx, func(row database.StoredEmbedding) bool {
		return row.IdentityID == identityID
	})
}

// Deactivate soft-deletes one embedding.
func (s *Store) Deactivate(ctx context.Context, embeddingID int64) (bool, error) {
	n, err := s.deactivateWhere(ctx, func(row database.StoredEmbedding) bool {
		return row.ID == embeddingID
	})
	return n > 0, err
}

func (s *Store) deactivateWhere(ctx context.Context, match func(database.StoredEmbedding) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	next := make([]database.StoredEmbedding, len(s.rows))
	copy(next, s.rows)
	var changed []int64
	for i := range next {
		if next[i].Active && match(next[i]) {
			next[i].Active = false
			changed = append(changed, next[i].ID)
		}
	}
	if len(changed) == 0 {
		return 0, nil
	}

	if err := s.persist(next, s.nextID); err != nil {
		return 0, err
	}

	s.rows = next
	for _, id := range changed {
		s.corpus.Remove(id)
	}
	return len(changed), nil
}
