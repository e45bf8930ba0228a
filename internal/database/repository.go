package database

import (
	"context"

	"github.com/kozaktomas/facegate/internal/facematch"
)

// EmbeddingReader provides read-only access to the embedding corpus
type EmbeddingReader interface {
	// AllActive returns a consistent snapshot of every active embedding.
	// The returned slice and its vectors must not be modified by the caller.
	AllActive(ctx context.Context) ([]facematch.Sample, error)
	// CountActive returns the number of active embeddings for an identity
	CountActive(ctx context.Context, identityID int64) (int, error)
	// Get returns a single embedding row (active or not), or ErrNotFound
	Get(ctx context.Context, embeddingID int64) (*StoredEmbedding, error)
}

// EmbeddingWriter provides write access to the embedding corpus.
// Writes are serialized; each one is all-or-nothing.
type EmbeddingWriter interface {
	EmbeddingReader

	// Add stores a new active embedding and returns its ID
	Add(ctx context.Context, e NewEmbedding) (int64, error)
	// AddUnlessConflict stores e unless NearestConflict finds another identity's
	// sample closer than threshold. Check and insert are one write: concurrent
	// callers never both pass the check. On conflict the ID is 0 and nothing is stored.
	AddUnlessConflict(ctx context.Context, e NewEmbedding, threshold float64) (int64, *facematch.Candidate, error)
	// DeactivateAll soft-deletes every active embedding of an identity.
	// Returns the number of rows changed; calling it twice is harmless.
	DeactivateAll(ctx context.Context, identityID int64) (int, error)
	// Deactivate soft-deletes one embedding. Returns false if it was not active.
	Deactivate(ctx context.Context, embeddingID int64) (bool, error)
}

// IdentityReader resolves identities owned by an external user directory.
type IdentityReader interface {
	// Exists reports whether the identity is known
	Exists(ctx context.Context, identityID int64) (bool, error)
	// FindByName looks an identity up by display name.
	// Names are compared after NormalizeName folding. Returns false when nothing matches.
	FindByName(ctx context.Context, name string) (int64, bool, error)
}

// NearestConflict returns the sample nearest to query when it belongs to an identity
// other than identity and lies strictly closer than threshold, and nil otherwise.
func NearestConflict(query []float64, corpus []facematch.Sample, identity int64, threshold float64) *facematch.Candidate {
	best, ok := facematch.Nearest(query, corpus)
	if !ok || best.Distance >= threshold || best.Identity == identity {
		return nil
	}
	return &best
}
