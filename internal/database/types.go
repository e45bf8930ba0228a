package database

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kozaktomas/facegate/internal/facematch"
)

// CaptureMethod records how an embedding entered the store.
type CaptureMethod string

const (
	CaptureRegistration CaptureMethod = "registration" // first enrollment of an identity
	CaptureImprovement  CaptureMethod = "improvement"  // extra sample for an already enrolled identity
	CaptureMigrated     CaptureMethod = "migrated"     // imported from a legacy store
)

var (
	// ErrNotFound is returned when a referenced embedding does not exist or is inactive.
	ErrNotFound = errors.New("not found")
	// ErrInvalidEmbedding is returned for writes whose payload cannot be stored.
	ErrInvalidEmbedding = errors.New("invalid embedding")
)

// ParseCaptureMethod validates a capture method string.
func ParseCaptureMethod(s string) (CaptureMethod, error) {
	m := CaptureMethod(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown capture method %q", s)
	}
	return m, nil
}

// Valid reports whether m is one of the known capture methods.
func (m CaptureMethod) Valid() bool {
	switch m {
	case CaptureRegistration, CaptureImprovement, CaptureMigrated:
		return true
	}
	return false
}

// StoredEmbedding represents an embedding row, active or soft-deleted.
type StoredEmbedding struct {
	ID            int64
	IdentityID    int64
	Vector        []float64
	QualityScore  *float64 // nil for migrated samples
	CaptureMethod CaptureMethod
	CreatedAt     time.Time
	Active        bool
}

// Sample converts the row into the matcher's corpus entry.
func (e StoredEmbedding) Sample() facematch.Sample {
	return facematch.Sample{EmbeddingID: e.ID, Identity: e.IdentityID, Vector: e.Vector}
}

// NewEmbedding is the payload of a store insert.
type NewEmbedding struct {
	IdentityID    int64
	Vector        []float64
	QualityScore  *float64
	CaptureMethod CaptureMethod
}

// Validate checks the payload before any write; dim <= 0 skips the length check.
func (n NewEmbedding) Validate(dim int) error {
	if len(n.Vector) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidEmbedding)
	}
	if dim > 0 && len(n.Vector) != dim {
		return fmt.Errorf("%w: expected %d dimensions, got %d", ErrInvalidEmbedding, dim, len(n.Vector))
	}
	for i, f := range n.Vector {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidEmbedding, i)
		}
	}
	if !n.CaptureMethod.Valid() {
		return fmt.Errorf("%w: unknown capture method %q", ErrInvalidEmbedding, n.CaptureMethod)
	}
	if n.QualityScore != nil && (*n.QualityScore < 0 || *n.QualityScore > 100) {
		return fmt.Errorf("%w: quality score %v outside [0, 100]", ErrInvalidEmbedding, *n.QualityScore)
	}
	return nil
}

// Stored materializes the payload as an active row.
func (n NewEmbedding) Stored(id int64, createdAt time.Time) StoredEmbedding {
	vec := make([]float64, len(n.Vector))
	copy(vec, n.Vector)
	var q *float64
	if n.QualityScore != nil {
		v := *n.QualityScore
		q = &v
	}
	return StoredEmbedding{
		ID:            id,
		IdentityID:    n.IdentityID,
		Vector:        vec,
		QualityScore:  q,
		CaptureMethod: n.CaptureMethod,
		CreatedAt:     createdAt,
		Active:        true,
	}
}

// Score returns a pointer to v, for building NewEmbedding literals.
func Score(v float64) *float64 {
	return &v
}
