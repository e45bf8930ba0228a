package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/facegate/internal/engine"
)

func TestStatsHandler_Get(t *testing.T) {
	fe := &fakeEngine{statsResult: &engine.Stats{
		TotalIdentities: 2,
		TotalEmbeddings: 5,
		AvgPerIdentity:  2.5,
		Identities:      []engine.IdentityStats{{Identity: 1, Samples: 2}, {Identity: 2, Samples: 3}},
		Thresholds:      engine.PolicyStats{RecognitionThreshold: 0.5, MinConfidence: 0.5, MarginThreshold: 0.08},
	}}
	rec := httptest.NewRecorder()

	NewStatsHandler(fe, nil).Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["total_identities"] != float64(2) {
		t.Errorf("total_identities = %v, want 2", body["total_identities"])
	}
	if body["total_embeddings"] != float64(5) {
		t.Errorf("total_embeddings = %v, want 5", body["total_embeddings"])
	}
	if body["avg_embeddings_per_identity"] != 2.5 {
		t.Errorf("avg_embeddings_per_identity = %v, want 2.5", body["avg_embeddings_per_identity"])
	}
	if _, ok := body["identities"].([]any); !ok {
		t.Errorf("identities = %v", body["identities"])
	}
	thresholds, ok := body["thresholds"].(map[string]any)
	if !ok || thresholds["margin_threshold"] != 0.08 {
		t.Errorf("thresholds = %v", body["thresholds"])
	}
}

func TestStatsHandler_StoreError(t *testing.T) {
	fe := &fakeEngine{statsErr: fmt.Errorf("%w: load corpus: refused", engine.ErrStore)}
	rec := httptest.NewRecorder()

	NewStatsHandler(fe, nil).Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
