package cmd

import (
	"context"
	"fmt"

	"github.com/innofolio/innofolio/internal/app"
	"github.com/innofolio/innofolio/internal/config"
	"github.com/innofolio/innofolio/internal/knowledge"
)

// runSeed indexes the default career-advice corpus into the knowledge base.
// Reseeding overwrites existing passages by ID, so it is safe to rerun.
func runSeed() error {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if err := checkRequiredEnv(); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	if err := knowledge.Seed(ctx, a.Store, logger); err != nil {
		return fmt.Errorf("seeding knowledge base: %w", err)
	}

	count, err := a.Store.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting passages: %w", err)
	}
	logger.Info("seed complete", "total_passages", count)
	return nil
}
