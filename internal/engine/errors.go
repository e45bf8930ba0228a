package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies why an enrollment was refused.
type Code string

const (
	CodeLowQuality      Code = "LOW_QUALITY"
	CodeNoFace          Code = "NO_FACE"
	CodeEmbedFailed     Code = "EMBED_FAILED"
	CodeDuplicateFace   Code = "DUPLICATE_FACE"
	CodeUnknownIdentity Code = "UNKNOWN_IDENTITY"
	CodeNotEnrolled     Code = "NOT_ENROLLED"
)

// EnrollmentError is returned when enrollment preconditions are not met.
// Nothing has been written to the store when it is returned.
type EnrollmentError struct {
	Code             Code
	Reason           string
	Issues           []string // quality issues, LOW_QUALITY only
	ConflictIdentity *int64   // owner of the matching face, DUPLICATE_FACE only
}

func (e *EnrollmentError) Error() string {
	if len(e.Issues) > 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Reason, strings.Join(e.Issues, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Is matches any EnrollmentError with the same code, so errors.Is(err, ErrNoFace) works.
func (e *EnrollmentError) Is(target error) bool {
	t, ok := target.(*EnrollmentError)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrLowQuality      = &EnrollmentError{Code: CodeLowQuality}
	ErrNoFace          = &EnrollmentError{Code: CodeNoFace}
	ErrEmbedFailed     = &EnrollmentError{Code: CodeEmbedFailed}
	ErrDuplicateFace   = &EnrollmentError{Code: CodeDuplicateFace}
	ErrUnknownIdentity = &EnrollmentError{Code: CodeUnknownIdentity}
	ErrNotEnrolled     = &EnrollmentError{Code: CodeNotEnrolled}
)

var (
	// ErrStore wraps failures of the embedding or identity store. The request may be retried.
	ErrStore = errors.New("store unavailable")
	// ErrFaceService wraps failures of the detector, landmark locator or embedder.
	ErrFaceService = errors.New("face service unavailable")
	// ErrInvalidInput is returned for malformed arguments such as an unknown capture method.
	ErrInvalidInput = errors.New("invalid input")
)

func reject(code Code, format string, args ...any) *EnrollmentError {
	return &EnrollmentError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

func faceServiceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrFaceService, op, err)
}
