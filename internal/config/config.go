package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var policyYAML []byte

type Config struct {
	Policy   Policy
	Store    StoreConfig
	Identity IdentityConfig
	Database DatabaseConfig
	Face     FaceServiceConfig
	Web      WebConfig
	Log      LogConfig
}

// Policy holds every tunable of the decision pipeline.
type Policy struct {
	Match   MatchPolicy   `yaml:"match"`
	Quality QualityPolicy `yaml:"quality"`
	Locator LocatorPolicy `yaml:"locator"`
	Enhance EnhancePolicy `yaml:"enhance"`
	Verify  VerifyPolicy  `yaml:"verify"`
}

type MatchPolicy struct {
	Threshold     float64 `yaml:"threshold"`
	MinConfidence float64 `yaml:"min_confidence"`
	Margin        float64 `yaml:"margin"`
	EmbeddingDim  int     `yaml:"embedding_dim"`
}

type QualityPolicy struct {
	MinBrightness float64 `yaml:"min_brightness"`
	MaxBrightness float64 `yaml:"max_brightness"`
	MinSharpness  float64 `yaml:"min_sharpness"`
	MinContrast   float64 `yaml:"min_contrast"`
	MinWidth      int     `yaml:"min_width"`
	MinHeight     int     `yaml:"min_height"`
	MinScore      int     `yaml:"min_score"`
}

type LocatorPolicy struct {
	MinConfidence float64 `yaml:"min_confidence"`
	Margin        int     `yaml:"margin"`
}

type EnhancePolicy struct {
	BlurSigma float64 `yaml:"blur_sigma"`
	Gain      float64 `yaml:"gain"`
	Bias      float64 `yaml:"bias"`
}

type VerifyPolicy struct {
	Frames     int           `yaml:"frames"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type StoreConfig struct {
	Backend  string        // postgres, file or memory (default memory)
	FilePath string        // snapshot path for the file backend
	CacheTTL time.Duration // how long the postgres backend trusts its in-process snapshot (0 = forever)
}

type IdentityConfig struct {
	Backend     string // postgres, mariadb or memory (default memory)
	DatabaseURL string // DSN for the identity source
	Table       string // table holding identities (default users)
	IDColumn    string // default id
	NameColumn  string // default full_name
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type FaceServiceConfig struct {
	URL        string // sidecar serving /detect, /landmarks and /embed
	CascadeDir string // directory with pigo facefinder and puploc cascades
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins string
	APIToken       string
	RateLimit      float64 // requests per second per client
}

type LogConfig struct {
	Level       string
	Development bool
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float, falling back to defaultVal when unset or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

// DefaultPolicy returns the embedded policy without env overrides.
func DefaultPolicy() Policy {
	var p Policy
	if err := yaml.Unmarshal(policyYAML, &p); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded policy.yaml: " + err.Error())
	}
	return p
}

func Load() *Config {
	p := DefaultPolicy()

	p.Match.Threshold = envFloat("FACE_MATCH_THRESHOLD", p.Match.Threshold)
	p.Match.MinConfidence = envFloat("FACE_MIN_CONFIDENCE", p.Match.MinConfidence)
	p.Match.Margin = envFloat("FACE_MARGIN", p.Match.Margin)
	p.Match.EmbeddingDim = envInt("FACE_EMBEDDING_DIM", p.Match.EmbeddingDim)
	p.Quality.MinScore = envInt("FACE_QUALITY_MIN_SCORE", p.Quality.MinScore)
	p.Locator.MinConfidence = envFloat("FACE_DETECT_MIN_CONFIDENCE", p.Locator.MinConfidence)
	p.Locator.Margin = envInt("FACE_CROP_MARGIN", p.Locator.Margin)
	p.Verify.Frames = envInt("FACE_VERIFY_FRAMES", p.Verify.Frames)
	p.Verify.SessionTTL = envDuration("FACE_VERIFY_TTL", p.Verify.SessionTTL)

	return &Config{
		Policy: p,
		Store: StoreConfig{
			Backend:  strings.ToLower(envString("STORE_BACKEND", "memory")),
			FilePath: envString("STORE_FILE_PATH", "facegate.snapshot"),
			CacheTTL: envDuration("STORE_CACHE_TTL", 0),
		},
		Identity: IdentityConfig{
			Backend:     strings.ToLower(envString("IDENTITY_BACKEND", "memory")),
			DatabaseURL: os.Getenv("IDENTITY_DATABASE_URL"),
			Table:       envString("IDENTITY_TABLE", "users"),
			IDColumn:    envString("IDENTITY_ID_COLUMN", "id"),
			NameColumn:  envString("IDENTITY_NAME_COLUMN", "full_name"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Face: FaceServiceConfig{
			URL:        envString("FACE_SERVICE_URL", "http://localhost:8000"),
			CascadeDir: os.Getenv("PIGO_CASCADE_DIR"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: os.Getenv("WEB_ALLOWED_ORIGINS"),
			APIToken:       os.Getenv("WEB_API_TOKEN"),
			RateLimit:      envFloat("WEB_RATE_LIMIT", 10),
		},
		Log: LogConfig{
			Level:       envString("LOG_LEVEL", "info"),
			Development: envBool("LOG_DEVELOPMENT"),
		},
	}
}

// Validate rejects policies that would make the matcher or quality gate meaningless.
func (p Policy) Validate() error {
	m := p.Match
	if m.Threshold <= 0 {
		return fmt.Errorf("match threshold must be positive, got %v", m.Threshold)
	}
	if m.MinConfidence < 0 || m.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be within [0, 1], got %v", m.MinConfidence)
	}
	if m.Margin < 0 {
		return fmt.Errorf("margin must not be negative, got %v", m.Margin)
	}
	if m.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding dim must be positive, got %d", m.EmbeddingDim)
	}
	q := p.Quality
	if q.MinBrightness >= q.MaxBrightness {
		return fmt.Errorf("brightness window [%v, %v] is empty", q.MinBrightness, q.MaxBrightness)
	}
	if q.MinScore < 0 || q.MinScore > 100 {
		return fmt.Errorf("quality min score must be within [0, 100], got %d", q.MinScore)
	}
	if p.Locator.MinConfidence < 0 || p.Locator.MinConfidence > 1 {
		return fmt.Errorf("detector confidence floor must be within [0, 1], got %v", p.Locator.MinConfidence)
	}
	if p.Verify.Frames <= 0 {
		return fmt.Errorf("verification needs at least one frame, got %d", p.Verify.Frames)
	}
	if p.Verify.SessionTTL <= 0 {
		return fmt.Errorf("verification session ttl must be positive, got %v", p.Verify.SessionTTL)
	}
	return nil
}

// Addr returns host:port for the HTTP listener.
func (c *WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
