package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultPolicy_Values(t *testing.T) {
	p := DefaultPolicy()

	if p.Match.Threshold != 0.50 {
		t.Errorf("expected threshold 0.50, got %v", p.Match.Threshold)
	}
	if p.Match.MinConfidence != 0.50 {
		t.Errorf("expected min confidence 0.50, got %v", p.Match.MinConfidence)
	}
	if p.Match.Margin != 0.08 {
		t.Errorf("expected margin 0.08, got %v", p.Match.Margin)
	}
	if p.Match.EmbeddingDim != 128 {
		t.Errorf("expected embedding dim 128, got %d", p.Match.EmbeddingDim)
	}
	if p.Quality.MinBrightness != 60 || p.Quality.MaxBrightness != 200 {
		t.Errorf("unexpected brightness window [%v, %v]", p.Quality.MinBrightness, p.Quality.MaxBrightness)
	}
	if p.Quality.MinSharpness != 50 || p.Quality.MinContrast != 20 {
		t.Errorf("unexpected sharpness/contrast floors %v/%v", p.Quality.MinSharpness, p.Quality.MinContrast)
	}
	if p.Quality.MinWidth != 200 || p.Quality.MinHeight != 200 || p.Quality.MinScore != 50 {
		t.Errorf("unexpected size/score floors %+v", p.Quality)
	}
	if p.Locator.MinConfidence != 0.6 || p.Locator.Margin != 40 {
		t.Errorf("unexpected locator policy %+v", p.Locator)
	}
	if p.Enhance.Gain != 1.15 || p.Enhance.Bias != 6 {
		t.Errorf("unexpected enhance policy %+v", p.Enhance)
	}
	if p.Verify.Frames != 3 || p.Verify.SessionTTL != 2*time.Minute {
		t.Errorf("unexpected verify policy %+v", p.Verify)
	}
}

func TestDefaultPolicy_Validates(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy should be valid: %v", err)
	}
}

func TestLoad_PolicyOverrides(t *testing.T) {
	t.Setenv("FACE_MATCH_THRESHOLD", "0.45")
	t.Setenv("FACE_MIN_CONFIDENCE", "0.6")
	t.Setenv("FACE_MARGIN", "0.1")
	t.Setenv("FACE_VERIFY_FRAMES", "5")

	cfg := Load()

	if cfg.Policy.Match.Threshold != 0.45 {
		t.Errorf("expected threshold 0.45, got %v", cfg.Policy.Match.Threshold)
	}
	if cfg.Policy.Match.MinConfidence != 0.6 {
		t.Errorf("expected min confidence 0.6, got %v", cfg.Policy.Match.MinConfidence)
	}
	if cfg.Policy.Match.Margin != 0.1 {
		t.Errorf("expected margin 0.1, got %v", cfg.Policy.Match.Margin)
	}
	if cfg.Policy.Verify.Frames != 5 {
		t.Errorf("expected 5 frames, got %d", cfg.Policy.Verify.Frames)
	}
}

func TestLoad_InvalidOverrideFallsBack(t *testing.T) {
	t.Setenv("FACE_MATCH_THRESHOLD", "not-a-number")
	t.Setenv("FACE_EMBEDDING_DIM", "-4")

	cfg := Load()

	if cfg.Policy.Match.Threshold != 0.50 {
		t.Errorf("expected default threshold for invalid input, got %v", cfg.Policy.Match.Threshold)
	}
	if cfg.Policy.Match.EmbeddingDim != 128 {
		t.Errorf("expected default dim for negative input, got %d", cfg.Policy.Match.EmbeddingDim)
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"STORE_BACKEND", "IDENTITY_BACKEND", "WEB_PORT", "IDENTITY_TABLE"} {
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.Store.Backend != "memory" {
		t.Errorf("expected memory store backend, got %q", cfg.Store.Backend)
	}
	if cfg.Identity.Backend != "memory" {
		t.Errorf("expected memory identity backend, got %q", cfg.Identity.Backend)
	}
	if cfg.Identity.Table != "users" || cfg.Identity.NameColumn != "full_name" {
		t.Errorf("unexpected identity table defaults %+v", cfg.Identity)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Web.Port)
	}
	if cfg.Database.MaxOpenConns != 25 || cfg.Database.MaxIdleConns != 5 {
		t.Errorf("unexpected pool defaults %+v", cfg.Database)
	}
}

func TestLoad_BackendIsLowercased(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Postgres")

	cfg := Load()

	if cfg.Store.Backend != "postgres" {
		t.Errorf("expected postgres, got %q", cfg.Store.Backend)
	}
}

func TestWebConfig_Addr(t *testing.T) {
	c := WebConfig{Host: "127.0.0.1", Port: 9000}
	if got := c.Addr(); got != "127.0.0.1:9000" {
		t.Errorf("expected 127.0.0.1:9000, got %s", got)
	}
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Policy)
	}{
		{"zero threshold", func(p *Policy) { p.Match.Threshold = 0 }},
		{"confidence above one", func(p *Policy) { p.Match.MinConfidence = 1.2 }},
		{"negative margin", func(p *Policy) { p.Match.Margin = -0.1 }},
		{"zero dim", func(p *Policy) { p.Match.EmbeddingDim = 0 }},
		{"empty brightness window", func(p *Policy) { p.Quality.MinBrightness = 210 }},
		{"score above 100", func(p *Policy) { p.Quality.MinScore = 101 }},
		{"detector floor above one", func(p *Policy) { p.Locator.MinConfidence = 2 }},
		{"no frames", func(p *Policy) { p.Verify.Frames = 0 }},
		{"zero session ttl", func(p *Policy) { p.Verify.SessionTTL = 0 }},
		{"negative session ttl", func(p *Policy) { p.Verify.SessionTTL = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
