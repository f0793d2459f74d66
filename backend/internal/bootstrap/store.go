// Package bootstrap opens the configured store for the command binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"graphclone/backend/internal/graph"
	"graphclone/backend/internal/schema"
	"graphclone/backend/internal/store"
	"graphclone/backend/internal/store/bolt"
	"graphclone/backend/internal/store/memory"
	"graphclone/backend/pkg/config"
)

// OpenStore opens the backend named by cfg.StoreBackend. The returned close
// function releases the store and any driver behind it.
func OpenStore(ctx context.Context, cfg *config.Config, reg *schema.Registry, log *zap.Logger) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Warn("Using in-memory store; records are lost on exit")
		s := memory.New(reg, log.Named("memstore"))
		return s, func() {}, nil

	case config.BackendBolt:
		s, err := bolt.Open(ctx, cfg.BoltPath, reg, log.Named("boltstore"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open bolt store: %w", err)
		}
		log.Info("Opened bolt store", zap.String("path", cfg.BoltPath))
		return s, func() {
			if err := s.Close(); err != nil {
				log.Error("Failed to close bolt store", zap.Error(err))
			}
		}, nil

	case config.BackendNeo4j:
		return openNeo4j(ctx, cfg, reg, log)
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func openNeo4j(ctx context.Context, cfg *config.Config, reg *schema.Registry, log *zap.Logger) (store.Store, func(), error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}
	closeDriver := func() {
		if err := driver.Close(context.Background()); err != nil {
			log.Error("Failed to close Neo4j driver", zap.Error(err))
		}
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		closeDriver()
		return nil, nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}

	repo, err := graph.NewRepository(driver, reg, cfg.Neo4jLabel, log.Named("neo4jstore"))
	if err != nil {
		closeDriver()
		return nil, nil, err
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		closeDriver()
		return nil, nil, fmt.Errorf("failed to create Neo4j constraints: %w", err)
	}

	log.Info("Connected to Neo4j", zap.String("uri", cfg.Neo4jURI), zap.String("label", cfg.Neo4jLabel))
	return repo, closeDriver, nil
}
