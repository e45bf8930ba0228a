package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/logging"
)

// StatsHandler handles statistics endpoints
type StatsHandler struct {
	engine FaceEngine
	logger *zap.Logger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(e FaceEngine, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{engine: e, logger: logging.OrNop(logger)}
}

// Get returns corpus statistics and the active policy
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Stats(r.Context())
	if err != nil {
		respondEngineError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}
