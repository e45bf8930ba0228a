package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/logging"
)

// IdentitiesHandler handles identity and embedding lifecycle endpoints.
type IdentitiesHandler struct {
	engine FaceEngine
	logger *zap.Logger
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(e FaceEngine, logger *zap.Logger) *IdentitiesHandler {
	return &IdentitiesHandler{engine: e, logger: logging.OrNop(logger)}
}

// DeactivateResponse reports how many embeddings a deactivation changed.
type DeactivateResponse struct {
	OK          bool `json:"ok"`
	Deactivated int  `json:"deactivated"`
}

// Deactivate soft-deletes every embedding of an identity.
func (h *IdentitiesHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid identity id")
		return
	}

	n, err := h.engine.Deactivate(r.Context(), id)
	if err != nil {
		respondEngineError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, DeactivateResponse{OK: true, Deactivated: n})
}

// CountEmbeddings returns the number of active embeddings of an identity.
func (h *IdentitiesHandler) CountEmbeddings(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid identity id")
		return
	}

	n, err := h.engine.CountSamples(r.Context(), id)
	if err != nil {
		respondEngineError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"identity": id, "count": int64(n)})
}

// RevokeEmbedding soft-deletes a single embedding.
func (h *IdentitiesHandler) RevokeEmbedding(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid embedding id")
		return
	}

	changed, err := h.engine.DeactivateEmbedding(r.Context(), id)
	if err != nil {
		respondEngineError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true, "deactivated": changed})
}
