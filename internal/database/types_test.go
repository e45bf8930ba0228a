package database

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseCaptureMethod(t *testing.T) {
	tests := []struct {
		input   string
		want    CaptureMethod
		wantErr bool
	}{
		{"registration", CaptureRegistration, false},
		{"improvement", CaptureImprovement, false},
		{"migrated", CaptureMigrated, false},
		{"Registration", "", true},
		{"manual", "", true},
		{"", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseCaptureMethod(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseCaptureMethod(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseCaptureMethod(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNewEmbedding_Validate(t *testing.T) {
	good := NewEmbedding{IdentityID: 1, Vector: []float64{0.1, 0.2}, CaptureMethod: CaptureRegistration}

	tests := []struct {
		name    string
		mutate  func(n *NewEmbedding)
		dim     int
		wantErr bool
	}{
		{"valid", func(n *NewEmbedding) {}, 2, false},
		{"dim check skipped", func(n *NewEmbedding) {}, 0, false},
		{"wrong dim", func(n *NewEmbedding) {}, 128, true},
		{"empty vector", func(n *NewEmbedding) { n.Vector = nil }, 0, true},
		{"nan", func(n *NewEmbedding) { n.Vector = []float64{math.NaN(), 0} }, 2, true},
		{"inf", func(n *NewEmbedding) { n.Vector = []float64{math.Inf(1), 0} }, 2, true},
		{"bad method", func(n *NewEmbedding) { n.CaptureMethod = "manual" }, 2, true},
		{"score too high", func(n *NewEmbedding) { n.QualityScore = Score(120) }, 2, true},
		{"migrated without score", func(n *NewEmbedding) { n.CaptureMethod = CaptureMigrated }, 2, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := good
			n.Vector = append([]float64(nil), good.Vector...)
			tc.mutate(&n)
			err := n.Validate(tc.dim)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEmbedding) {
				t.Errorf("expected ErrInvalidEmbedding, got %v", err)
			}
		})
	}
}

func TestNewEmbedding_StoredCopiesVector(t *testing.T) {
	n := NewEmbedding{IdentityID: 3, Vector: []float64{1, 2}, QualityScore: Score(75), CaptureMethod: CaptureImprovement}
	now := time.Now()

	row := n.Stored(9, now)
	n.Vector[0] = 42
	*n.QualityScore = 10

	if row.Vector[0] != 1 {
		t.Errorf("stored vector aliased the input")
	}
	if *row.QualityScore != 75 {
		t.Errorf("stored quality score aliased the input")
	}
	if !row.Active || row.ID != 9 || row.IdentityID != 3 {
		t.Errorf("unexpected row %+v", row)
	}

	sample := row.Sample()
	if sample.EmbeddingID != 9 || sample.Identity != 3 {
		t.Errorf("unexpected sample %+v", sample)
	}
}
