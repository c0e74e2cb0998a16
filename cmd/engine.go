// File: cmd/engine.go
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/luminark/rudder/api/schemas"
	"github.com/luminark/rudder/internal/config"
	"github.com/luminark/rudder/internal/decision"
	"github.com/luminark/rudder/internal/history"
	"github.com/luminark/rudder/internal/stubs"
)

// buildEngine assembles the decision engine from the loaded configuration.
// The LLM, retriever and registry collaborators are the in-process stubs; a
// deployment swaps them for real service bindings at this seam. The returned
// cleanup releases the history backend's resources.
func buildEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*decision.Engine, func(), error) {
	cleanup := func() {}

	var recorder history.Recorder
	switch cfg.History.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.History.Postgres.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to history database: %w", err)
		}
		recorder, err = history.NewPostgresRecorder(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		cleanup = pool.Close
	default:
		recorder = history.NewMemoryRecorder(logger)
	}

	caps := []schemas.Capability(nil)
	if cfg.Catalog.SeedFile != "" {
		loaded, err := stubs.LoadCapabilities(cfg.Catalog.SeedFile)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		caps = loaded
	}

	engine, err := decision.New(
		cfg,
		logger,
		stubs.NewLLM(),
		stubs.NewRetriever(),
		stubs.NewRegistry(caps),
		recorder,
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	if err := engine.Refresh(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("loading capability catalog: %w", err)
	}
	return engine, cleanup, nil
}
