// Package legacy imports face encodings exported from the previous recognition store.
package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/logging"
)

// ErrUnknownLayout is returned for exports that match neither supported layout.
var ErrUnknownLayout = errors.New("unrecognized legacy export layout")

// Export maps display names to their encodings.
type Export struct {
	Encodings map[string][][]float64
}

// Names returns the exported names in sorted order.
func (e *Export) Names() []string {
	names := make([]string, 0, len(e.Encodings))
	for name := range e.Encodings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Total returns the number of encodings across all names.
func (e *Export) Total() int {
	var n int
	for _, encs := range e.Encodings {
		n += len(encs)
	}
	return n
}

type rawExport struct {
	UserEncodings map[string][][]float64 `json:"user_encodings"`
	Users         []string               `json:"users"`
	Encodings     [][]float64            `json:"encodings"`
}

// Parse reads either {"user_encodings": {name: [vec, ...]}} or the older
// {"users": [name, ...], "encodings": [vec, ...]} layout with one encoding per user.
func Parse(r io.Reader) (*Export, error) {
	var raw rawExport
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding legacy export: %w", err)
	}

	switch {
	case raw.UserEncodings != nil:
		return &Export{Encodings: raw.UserEncodings}, nil
	case raw.Users != nil && raw.Encodings != nil:
		if len(raw.Users) != len(raw.Encodings) {
			return nil, fmt.Errorf("%w: %d users but %d encodings", ErrUnknownLayout, len(raw.Users), len(raw.Encodings))
		}
		out := make(map[string][][]float64, len(raw.Users))
		for i, name := range raw.Users {
			out[name] = append(out[name], raw.Encodings[i])
		}
		return &Export{Encodings: out}, nil
	}
	return nil, ErrUnknownLayout
}

// Load parses the export at path.
func Load(path string) (*Export, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening legacy export: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Report summarizes a migration run.
type Report struct {
	Identities int              `json:"identities"`
	Imported   int              `json:"imported"`
	Invalid    int              `json:"invalid"`
	Unknown    []string         `json:"unknown,omitempty"`
	Resolved   map[string]int64 `json:"resolved,omitempty"`
}

// Migrator resolves legacy names and stores their encodings as migrated samples.
type Migrator struct {
	store      database.EmbeddingWriter
	identities database.IdentityReader
	dim        int
	workers    int
	dryRun     bool
	logger     *zap.Logger
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithWorkers sets how many names are processed concurrently.
func WithWorkers(n int) Option {
	return func(m *Migrator) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithDryRun resolves names without writing anything.
func WithDryRun(dryRun bool) Option {
	return func(m *Migrator) { m.dryRun = dryRun }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Migrator) { m.logger = logging.OrNop(l) }
}

// NewMigrator creates a migrator writing vectors of length dim into store.
func NewMigrator(store database.EmbeddingWriter, identities database.IdentityReader, dim int, opts ...Option) *Migrator {
	m := &Migrator{
		store:      store,
		identities: identities,
		dim:        dim,
		workers:    1,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run imports every name of exp. Unknown names and invalid vectors are reported and skipped;
// a store failure aborts the run. progress, when set, is called once per processed name.
func (m *Migrator) Run(ctx context.Context, exp *Export, progress func()) (*Report, error) {
	report := &Report{Resolved: make(map[string]int64)}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for _, name := range exp.Names() {
		encodings := exp.Encodings[name]
		g.Go(func() error {
			if progress != nil {
				defer progress()
			}

			id, ok, err := m.identities.FindByName(ctx, name)
			if err != nil {
				return fmt.Errorf("resolving %q: %w", name, err)
			}
			if !ok {
				m.logger.Warn("legacy identity not found", zap.String("name", name))
				mu.Lock()
				report.Unknown = append(report.Unknown, name)
				mu.Unlock()
				return nil
			}

			imported, invalid, err := m.importEncodings(ctx, id, encodings)

			mu.Lock()
			defer mu.Unlock()
			report.Resolved[name] = id
			report.Imported += imported
			report.Invalid += invalid
			if imported > 0 {
				report.Identities++
			}
			if err != nil {
				return fmt.Errorf("importing %q: %w", name, err)
			}
			m.logger.Info("legacy identity migrated",
				zap.String("name", name), logging.Identity(id), zap.Int("encodings", imported))
			return nil
		})
	}

	err := g.Wait()
	sort.Strings(report.Unknown)
	return report, err
}

func (m *Migrator) importEncodings(ctx context.Context, id int64, encodings [][]float64) (int, int, error) {
	var imported, invalid int
	for _, vec := range encodings {
		n := database.NewEmbedding{
			IdentityID:    id,
			Vector:        vec,
			CaptureMethod: database.CaptureMigrated,
		}
		if err := n.Validate(m.dim); err != nil {
			m.logger.Warn("skipping invalid legacy encoding", logging.Identity(id), zap.Error(err))
			invalid++
			continue
		}
		if m.dryRun {
			imported++
			continue
		}
		if _, err := m.store.Add(ctx, n); err != nil {
			return imported, invalid, err
		}
		imported++
	}
	return imported, invalid, nil
}
