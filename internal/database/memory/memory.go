// Package memory provides in-process implementations of the embedding store and
// identity directory. Nothing survives a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/facematch"
)

// Store is an in-memory database.EmbeddingWriter.
type Store struct {
	dim int
	now func() time.Time

	mu     sync.RWMutex // guards rows and nextID; held for writing by every mutation
	rows   map[int64]*database.StoredEmbedding
	nextID int64
	corpus *database.Corpus
}

// NewStore creates an empty store accepting vectors of length dim (0 accepts any length).
func NewStore(dim int) *Store {
	return &Store{
		dim:    dim,
		now:    time.Now,
		rows:   make(map[int64]*database.StoredEmbedding),
		corpus: database.NewCorpus(nil),
	}
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

// Get returns a copy of a single row.
func (s *Store) Get(ctx context.Context, embeddingID int64) (*database.StoredEmbedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[embeddingID]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

// Add stores a new active embedding.
func (s *Store) Add(ctx context.Context, n database.NewEmbedding) (int64, error) {
	if err := n.Validate(s.dim); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(n), nil
}

// AddUnlessConflict checks the snapshot and stores n under the write lock.
func (s *Store) AddUnlessConflict(ctx context.Context, n database.NewEmbedding, threshold float64) (int64, *facematch.Candidate, error) {
	if err := n.Validate(s.dim); err != nil {
		return 0, nil, err
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c := database.NearestConflict(n.Vector, s.corpus.Load(), n.IdentityID, threshold); c != nil {
		return 0, c, nil
	}
	return s.addLocked(n), nil, nil
}

func (s *Store) addLocked(n database.NewEmbedding) int64 {
	s.nextID++
	row := n.Stored(s.nextID, s.now())
	s.rows[row.ID] = &row
	s.corpus.Append(row.Sample())
	return row.ID
}

// DeactivateAll soft-deletes every active embedding of an identity.
func (s *Store) DeactivateAll(ctx context.Context, identityID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, row := range s.rows {
		if row.IdentityID == identityID && row.Active {
			row.Active = false
			n++
		}
	}
	s.corpus.RemoveIdentity(identityID)
	return n, nil
}

// Deactivate soft-deletes one embedding.
func (s *Store) Deactivate(ctx context.Context, embeddingID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[embeddingID]
	if !ok || !row.Active {
		return false, nil
	}
	row.Active = false
	s.corpus.Remove(embeddingID)
	return true, nil
}

// Identities is an in-memory database.IdentityReader.
type Identities struct {
	mu    sync.RWMutex
	names map[int64]string
	open  bool
}

// NewIdentities creates a directory holding the given id → name entries.
func NewIdentities(names map[int64]string) *Identities {
	m := make(map[int64]string, len(names))
	for id, name := range names {
		m[id] = name
	}
	return &Identities{names: m}
}

// NewOpenIdentities creates a directory that accepts every identity ID.
// Used when no external user directory is configured.
func NewOpenIdentities() *Identities {
	return &Identities{names: make(map[int64]string), open: true}
}

// Put adds or renames an identity.
func (d *Identities) Put(id int64, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[id] = name
}

// Exists reports whether id is known (always true for an open directory with positive IDs).
func (d *Identities) Exists(ctx context.Context, identityID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.open && identityID > 0 {
		return true, nil
	}
	_, ok := d.names[identityID]
	return ok, nil
}

// FindByName returns the lowest ID whose name folds to the same value as name.
func (d *Identities) FindByName(ctx context.Context, name string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	target := facematch.NormalizeName(name)
	if target == "" {
		return 0, false, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var found int64
	ok := false
	for id, n := range d.names {
		if facematch.NormalizeName(n) == target && (!ok || id < found) {
			found = id
			ok = true
		}
	}
	return found, ok, nil
}
