package database

import (
	"testing"

	"github.com/kozaktomas/facegate/internal/facematch"
)

func TestNearestConflict(t *testing.T) {
	corpus := []facematch.Sample{
		{EmbeddingID: 1, Identity: 10, Vector: []float64{0, 0}},
		{EmbeddingID: 2, Identity: 20, Vector: []float64{0.3, 0}},
	}

	tests := []struct {
		name      string
		query     []float64
		identity  int64
		threshold float64
		want      int64 // conflicting identity, 0 for none
	}{
		{"nearest belongs to another identity", []float64{0.1, 0}, 20, 0.5, 10},
		{"nearest belongs to the same identity", []float64{0.1, 0}, 10, 0.5, 0},
		{"nearest is outside threshold", []float64{2, 0}, 30, 0.5, 0},
		{"distance equal to threshold is not a conflict", []float64{0, 0.5}, 30, 0.5, 0},
		{"another identity is close but not nearest", []float64{0.12, 0}, 10, 0.5, 0},
		{"empty corpus", []float64{0, 0}, 10, 0.5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := corpus
			if tt.name == "empty corpus" {
				c = nil
			}
			got := NearestConflict(tt.query, c, tt.identity, tt.threshold)
			if tt.want == 0 {
				if got != nil {
					t.Errorf("expected no conflict, got %+v", got)
				}
				return
			}
			if got == nil || got.Identity != tt.want {
				t.Errorf("expected conflict with %d, got %+v", tt.want, got)
			}
		})
	}
}
