package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/engine"
	"github.com/kozaktomas/facegate/internal/frame"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// FaceEngine is the part of engine.Engine the HTTP API uses.
type FaceEngine interface {
	Enroll(ctx context.Context, identity int64, img image.Image, method database.CaptureMethod) (*engine.Enrollment, error)
	Recognize(ctx context.Context, img image.Image) (*engine.Recognition, error)
	RecognizeVerified(ctx context.Context, session string, img image.Image) (*engine.VerifiedRecognition, error)
	ResetSession(session string)
	Deactivate(ctx context.Context, identity int64) (int, error)
	DeactivateEmbedding(ctx context.Context, embeddingID int64) (bool, error)
	CountSamples(ctx context.Context, identity int64) (int, error)
	Stats(ctx context.Context) (*engine.Stats, error)
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// ErrorResponse is the body of every failed engine call.
type ErrorResponse struct {
	Error            string   `json:"error"`
	Code             string   `json:"code,omitempty"`
	Issues           []string `json:"issues,omitempty"`
	ConflictIdentity *int64   `json:"conflict_identity,omitempty"`
}

// statusForError maps engine errors to HTTP status codes.
func statusForError(err error) int {
	var enrollErr *engine.EnrollmentError
	if errors.As(err, &enrollErr) {
		switch enrollErr.Code {
		case engine.CodeUnknownIdentity:
			return http.StatusNotFound
		case engine.CodeDuplicateFace, engine.CodeNotEnrolled:
			return http.StatusConflict
		default:
			return http.StatusUnprocessableEntity
		}
	}

	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, frame.ErrTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, engine.ErrFaceService):
		return http.StatusBadGateway
	case errors.Is(err, engine.ErrStore), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondEngineError writes err as an ErrorResponse. Server-side failures are logged.
func respondEngineError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusForError(err)
	body := ErrorResponse{Error: err.Error()}

	var enrollErr *engine.EnrollmentError
	if errors.As(err, &enrollErr) {
		body.Error = enrollErr.Reason
		body.Code = string(enrollErr.Code)
		body.Issues = enrollErr.Issues
		body.ConflictIdentity = enrollErr.ConflictIdentity
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
		if status == http.StatusInternalServerError {
			body.Error = "internal error"
		}
	}
	respondJSON(w, status, body)
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
