// Package app wires configuration, storage, the model runtime, and the chat
// pipeline into a runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/innofolio/innofolio/db"
	"github.com/innofolio/innofolio/internal/api"
	"github.com/innofolio/innofolio/internal/config"
	"github.com/innofolio/innofolio/internal/knowledge"
	"github.com/innofolio/innofolio/internal/llm"
	"github.com/innofolio/innofolio/internal/pipeline"
	"github.com/innofolio/innofolio/internal/prompt"
	"github.com/innofolio/innofolio/internal/retrieval"
	"github.com/innofolio/innofolio/internal/safety"
)

// App holds the initialized application components.
// Call Close() to release resources.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Pool      *pgxpool.Pool
	Genkit    *genkit.Genkit
	Embedder  ai.Embedder
	Store     *knowledge.Store
	Pipeline  *pipeline.Pipeline
	Server    *api.Server

	dbCleanup func()
}

// Setup creates and initializes the application. On error, everything
// already initialized is cleaned up.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, dbCleanup, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.Pool = pool

	a.Genkit = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))

	a.Embedder = googlegenai.GoogleAIEmbedder(a.Genkit, cfg.EmbedderModel)
	if a.Embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	a.Store = knowledge.New(
		knowledge.NewPgxQuerier(pool),
		a.Embedder,
		logger,
		knowledge.WithSearchTimeout(cfg.SearchTimeout),
	)

	retriever := retrieval.New(
		a.Store,
		a.Embedder,
		cfg.MinRelevanceScore,
		logger,
		retrieval.WithEmbedTimeout(cfg.EmbedTimeout),
		retrieval.WithEmbedCache(cfg.EmbedCacheSize),
	)

	guard := safety.NewGuard(logger)
	assembler := prompt.NewAssembler(cfg.PromptBudget, cfg.HistoryWindow, logger)
	generator := llm.New(a.Genkit, cfg.ModelName, logger, llm.WithTimeout(cfg.GenerateTimeout))

	a.Pipeline = pipeline.New(retriever, guard, assembler, generator,
		pipeline.Config{RetrievalK: cfg.RetrievalK}, logger)

	server, err := api.NewServer(api.ServerConfig{
		Logger:      logger,
		Pipeline:    a.Pipeline,
		Pool:        pool,
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxy,
		RateBurst:   cfg.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	a.Server = server

	return a, nil
}

// Close releases application resources.
func (a *App) Close() error {
	if a.dbCleanup != nil {
		a.dbCleanup()
		a.dbCleanup = nil
	}
	return nil
}

// providePool runs migrations and opens the connection pool. Every pooled
// connection registers pgvector types so embedding columns scan natively.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.ConnString()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}
