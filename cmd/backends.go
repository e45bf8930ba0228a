package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/audit"
	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/database/filestore"
	"github.com/kozaktomas/facegate/internal/database/mariadb"
	"github.com/kozaktomas/facegate/internal/database/memory"
	"github.com/kozaktomas/facegate/internal/database/postgres"
	"github.com/kozaktomas/facegate/internal/engine"
	"github.com/kozaktomas/facegate/internal/facedetect"
	"github.com/kozaktomas/facegate/internal/fingerprint"
)

// stores is the opened storage of one process.
type stores struct {
	backend  *database.Backend
	searcher audit.NeighborSearcher // nil unless the store can search neighbors itself
	pg       *postgres.Pool
}

func (s *stores) Close() error {
	return s.backend.Close()
}

func identityTable(cfg config.IdentityConfig) database.IdentityTable {
	return database.IdentityTable{
		Table:      cfg.Table,
		IDColumn:   cfg.IDColumn,
		NameColumn: cfg.NameColumn,
	}
}

// openPostgres connects once and reuses the pool for the embedding and identity stores.
func (s *stores) openPostgres(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*postgres.Pool, error) {
	if s.pg != nil {
		return s.pg, nil
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	logger.Info("connecting to PostgreSQL")
	pool, err := postgres.Open(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	s.backend.OnClose(pool.Close)
	s.pg = pool
	return pool, nil
}

// openStores builds the embedding and identity stores selected by configuration.
func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	s := &stores{backend: &database.Backend{}}
	if err := s.openEmbeddings(ctx, cfg, logger); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.openIdentities(ctx, cfg, logger); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *stores) openEmbeddings(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	dim := cfg.Policy.Match.EmbeddingDim

	switch cfg.Store.Backend {
	case "postgres":
		pool, err := s.openPostgres(ctx, cfg, logger)
		if err != nil {
			return err
		}
		repo := postgres.NewEmbeddingRepository(pool, cfg.Store.CacheTTL, logger)
		s.backend.Embeddings = repo
		s.searcher = repo
	case "file":
		store, err := filestore.Open(cfg.Store.FilePath, dim)
		if err != nil {
			return fmt.Errorf("opening embedding file %s: %w", cfg.Store.FilePath, err)
		}
		s.backend.OnClose(store.Close)
		s.backend.Embeddings = store
	case "memory", "":
		logger.Warn("using in-memory embedding store, enrollments are lost on exit")
		s.backend.Embeddings = memory.NewStore(dim)
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want postgres, file or memory)", cfg.Store.Backend)
	}
	logger.Info("embedding store ready", zap.String("backend", cfg.Store.Backend))
	return nil
}

func (s *stores) openIdentities(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	table := identityTable(cfg.Identity)

	switch cfg.Identity.Backend {
	case "postgres":
		pool := s.pg
		if cfg.Identity.DatabaseURL != "" {
			dbCfg := cfg.Database
			dbCfg.URL = cfg.Identity.DatabaseURL
			p, err := postgres.NewPool(ctx, &dbCfg)
			if err != nil {
				return fmt.Errorf("connecting to identity database: %w", err)
			}
			s.backend.OnClose(p.Close)
			pool = p
		} else if pool == nil {
			p, err := s.openPostgres(ctx, cfg, logger)
			if err != nil {
				return err
			}
			pool = p
		}
		repo, err := postgres.NewIdentityRepository(pool, table)
		if err != nil {
			return err
		}
		s.backend.Identities = repo
	case "mariadb", "mysql":
		pool, err := mariadb.NewPool(ctx, cfg.Identity.DatabaseURL)
		if err != nil {
			return err
		}
		s.backend.OnClose(pool.Close)
		repo, err := mariadb.NewIdentityRepository(pool, table)
		if err != nil {
			return err
		}
		s.backend.Identities = repo
	case "memory", "":
		s.backend.Identities = memory.NewOpenIdentities()
	default:
		return fmt.Errorf("unknown IDENTITY_BACKEND %q (want postgres, mariadb or memory)", cfg.Identity.Backend)
	}
	logger.Info("identity store ready", zap.String("backend", cfg.Identity.Backend))
	return nil
}

// faceModels picks the detector and landmark locator: in-process pigo cascades when
// PIGO_CASCADE_DIR is set, the face service otherwise. The face service always embeds.
func faceModels(cfg *config.Config, client *fingerprint.Client, logger *zap.Logger) (facedetect.Detector, facedetect.LandmarkLocator, error) {
	if cfg.Face.CascadeDir == "" {
		return client, client, nil
	}
	pigo, err := facedetect.NewPigoDetector(cfg.Face.CascadeDir)
	if err != nil {
		return nil, nil, fmt.Errorf("loading pigo cascades: %w", err)
	}
	logger.Info("using in-process pigo detector", zap.String("cascades", cfg.Face.CascadeDir))
	return pigo, pigo, nil
}

// newEngine opens the stores and builds the engine on top of them.
func newEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*engine.Engine, *stores, *fingerprint.Client, error) {
	s, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	client := fingerprint.NewClient(cfg.Face.URL)
	detector, landmarks, err := faceModels(cfg, client, logger)
	if err != nil {
		_ = s.Close()
		return nil, nil, nil, err
	}

	eng, err := engine.New(cfg.Policy, engine.Deps{
		Detector:   detector,
		Landmarks:  landmarks,
		Embedder:   client,
		Store:      s.backend.Embeddings,
		Identities: s.backend.Identities,
		Logger:     logger,
	})
	if err != nil {
		_ = s.Close()
		return nil, nil, nil, err
	}
	return eng, s, client, nil
}
