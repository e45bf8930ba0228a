// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/database/memory"
	"github.com/kozaktomas/facegate/internal/facematch"
)

// MockEmbeddingStore is a database.EmbeddingWriter backed by memory.Store
// with per-method error injection and call recording.
type MockEmbeddingStore struct {
	*memory.Store

	mu sync.Mutex
	// AddCalls holds every Add call and every AddUnlessConflict call that stored a row
	AddCalls []database.NewEmbedding

	// Error injection
	AllActiveError     error
	CountActiveError   error
	GetError           error
	AddError           error
	DeactivateAllError error
	DeactivateError    error
}

// NewMockEmbeddingStore creates a new mock embedding store
func NewMockEmbeddingStore(dim int) *MockEmbeddingStore {
	return &MockEmbeddingStore{Store: memory.NewStore(dim)}
}

// Seed adds embeddings without going through error injection
func (m *MockEmbeddingStore) Seed(identityID int64, vectors ...[]float64) {
	for _, v := range vectors {
		_, _ = m.Store.Add(context.Background(), database.NewEmbedding{
			IdentityID:    identityID,
			Vector:        v,
			QualityScore:  database.Score(100),
			CaptureMethod: database.CaptureRegistration,
		})
	}
}

// AllActive returns the snapshot unless AllActiveError is set
func (m *MockEmbeddingStore) AllActive(ctx context.Context) ([]facematch.Sample, error) {
	if m.AllActiveError != nil {
		return nil, m.AllActiveError
	}
	return m.Store.AllActive(ctx)
}

// CountActive counts active embeddings unless CountActiveError is set
func (m *MockEmbeddingStore) CountActive(ctx context.Context, identityID int64) (int, error) {
	if m.CountActiveError != nil {
		return 0, m.CountActiveError
	}
	return m.Store.CountActive(ctx, identityID)
}

// Get returns a row unless GetError is set
func (m *MockEmbeddingStore) Get(ctx context.Context, embeddingID int64) (*database.StoredEmbedding, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	return m.Store.Get(ctx, embeddingID)
}

// Add records the call and stores the embedding unless AddError is set
func (m *MockEmbeddingStore) Add(ctx context.Context, n database.NewEmbedding) (int64, error) {
	m.mu.Lock()
	m.AddCalls = append(m.AddCalls, n)
	m.mu.Unlock()

	if m.AddError != nil {
		return 0, m.AddError
	}
	return m.Store.Add(ctx, n)
}

// AddUnlessConflict stores the embedding unless AddError is set or it conflicts
func (m *MockEmbeddingStore) AddUnlessConflict(ctx context.Context, n database.NewEmbedding, threshold float64) (int64, *facematch.Candidate, error) {
	if m.AddError != nil {
		return 0, nil, m.AddError
	}
	id, conflict, err := m.Store.AddUnlessConflict(ctx, n, threshold)
	if err == nil && conflict == nil {
		m.mu.Lock()
		m.AddCalls = append(m.AddCalls, n)
		m.mu.Unlock()
	}
	return id, conflict, err
}

// DeactivateAll soft-deletes an identity unless DeactivateAllError is set
func (m *MockEmbeddingStore) DeactivateAll(ctx context.Context, identityID int64) (int, error) {
	if m.DeactivateAllError != nil {
		return 0, m.DeactivateAllError
	}
	return m.Store.DeactivateAll(ctx, identityID)
}

// Deactivate soft-deletes one embedding unless DeactivateError is set
func (m *MockEmbeddingStore) Deactivate(ctx context.Context, embeddingID int64) (bool, error) {
	if m.DeactivateError != nil {
		return false, m.DeactivateError
	}
	return m.Store.Deactivate(ctx, embeddingID)
}

// AddCallCount returns how many Add calls were made
func (m *MockEmbeddingStore) AddCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.AddCalls)
}

// MockIdentityReader is a database.IdentityReader with error injection
type MockIdentityReader struct {
	*memory.Identities

	ExistsError     error
	FindByNameError error
}

// NewMockIdentityReader creates a directory holding names
func NewMockIdentityReader(names map[int64]string) *MockIdentityReader {
	return &MockIdentityReader{Identities: memory.NewIdentities(names)}
}

// Exists checks the directory unless ExistsError is set
func (m *MockIdentityReader) Exists(ctx context.Context, identityID int64) (bool, error) {
	if m.ExistsError != nil {
		return false, m.ExistsError
	}
	return m.Identities.Exists(ctx, identityID)
}

// FindByName resolves a name unless FindByNameError is set
func (m *MockIdentityReader) FindByName(ctx context.Context, name string) (int64, bool, error) {
	if m.FindByNameError != nil {
		return 0, false, m.FindByNameError
	}
	return m.Identities.FindByName(ctx, name)
}

var (
	_ database.EmbeddingWriter = (*MockEmbeddingStore)(nil)
	_ database.IdentityReader  = (*MockIdentityReader)(nil)
)
