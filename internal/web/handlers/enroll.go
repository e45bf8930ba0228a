package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/logging"
)

// EnrollHandler handles enrollment endpoints.
type EnrollHandler struct {
	engine FaceEngine
	logger *zap.Logger
}

// NewEnrollHandler creates a new enroll handler.
func NewEnrollHandler(e FaceEngine, logger *zap.Logger) *EnrollHandler {
	return &EnrollHandler{engine: e, logger: logging.OrNop(logger)}
}

// Enroll stores one face sample for an identity.
// capture_method defaults to "registration".
func (h *EnrollHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	req, img, err := readFrame(w, r)
	if err != nil {
		respondFrameError(w, err)
		return
	}
	if req.Identity <= 0 {
		respondError(w, http.StatusBadRequest, "identity is required")
		return
	}

	method := database.CaptureRegistration
	if req.CaptureMethod != "" {
		m, err := database.ParseCaptureMethod(req.CaptureMethod)
		if err != nil {
			h.logger.Debug("rejected capture method", zap.String("capture_method", sanitizeForLog(req.CaptureMethod)))
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		method = m
	}

	res, err := h.engine.Enroll(r.Context(), req.Identity, img, method)
	if err != nil {
		respondEngineError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}
