package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/logging"
)

// RecognizeHandler handles recognition endpoints.
type RecognizeHandler struct {
	engine FaceEngine
	logger *zap.Logger
}

// NewRecognizeHandler creates a new recognize handler.
func NewRecognizeHandler(e FaceEngine, logger *zap.Logger) *RecognizeHandler {
	return &RecognizeHandler{engine: e, logger: logging.OrNop(logger)}
}

// Recognize returns the match decision for a single frame.
// NO_MATCH, AMBIGUOUS, NO_FACE and LOW_QUALITY are decisions and answer 200.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	_, img, err := readFrame(w, r)
	if err != nil {
		respondFrameError(w, err)
		return
	}

	res, err := h.engine.Recognize(r.Context(), img)
	if err != nil {
		respondEngineError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Verified adds one frame to a multi-frame verification session.
func (h *RecognizeHandler) Verified(w http.ResponseWriter, r *http.Request) {
	req, img, err := readFrame(w, r)
	if err != nil {
		respondFrameError(w, err)
		return
	}

	res, err := h.engine.RecognizeVerified(r.Context(), req.Session, img)
	if err != nil {
		respondEngineError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// ResetSession discards a verification session.
func (h *RecognizeHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	session := chi.URLParam(r, "session")
	if session == "" {
		respondError(w, http.StatusBadRequest, "session is required")
		return
	}
	h.engine.ResetSession(session)
	w.WriteHeader(http.StatusNoContent)
}
