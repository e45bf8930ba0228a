package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/audit"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/logging"
)

// AuditHandler reports confusable identity pairs.
type AuditHandler struct {
	store     database.EmbeddingReader
	searcher  audit.NeighborSearcher // nil builds an in-memory index per request
	threshold float64
	logger    *zap.Logger
}

// NewAuditHandler creates a new audit handler. searcher may be nil.
func NewAuditHandler(store database.EmbeddingReader, searcher audit.NeighborSearcher, threshold float64, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{store: store, searcher: searcher, threshold: threshold, logger: logging.OrNop(logger)}
}

// ConflictsResponse is the body of GET /audit/conflicts.
type ConflictsResponse struct {
	Samples   int              `json:"samples"`
	Threshold float64          `json:"threshold"`
	Conflicts []audit.Conflict `json:"conflicts"`
}

// Conflicts lists identity pairs closer than the recognition threshold.
// ?limit=N truncates the list.
func (h *AuditHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	corpus, err := h.store.AllActive(r.Context())
	if err != nil {
		h.logger.Error("loading corpus failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}

	searcher := h.searcher
	if searcher == nil {
		searcher = audit.IndexCorpus(corpus)
	}

	conflicts, err := audit.New(searcher, h.threshold, audit.WithLogger(h.logger)).Conflicts(r.Context(), corpus, nil)
	if err != nil {
		h.logger.Error("audit failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "audit failed")
		return
	}
	if limit > 0 && len(conflicts) > limit {
		conflicts = conflicts[:limit]
	}

	respondJSON(w, http.StatusOK, ConflictsResponse{
		Samples:   len(corpus),
		Threshold: h.threshold,
		Conflicts: conflicts,
	})
}
