// Package app builds the object graph shared by the HTTP server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arturoeanton/go-star-search/internal/adapter/ai"
	"github.com/arturoeanton/go-star-search/internal/adapter/github"
	"github.com/arturoeanton/go-star-search/internal/adapter/store"
	"github.com/arturoeanton/go-star-search/internal/observability"
	"github.com/arturoeanton/go-star-search/internal/port"
	"github.com/arturoeanton/go-star-search/internal/service"
	"github.com/arturoeanton/go-star-search/pkg/config"

	_ "github.com/lib/pq"
)

const defaultOllamaModel = "bge-m3"

// App holds the wired adapters and services.
type App struct {
	Config   *config.Config
	Source   port.SourceProvider
	Embedder port.EmbeddingProvider
	Store    port.VectorStore
	Settings port.SettingsStore
	// Audit is nil for backends without a relational side.
	Audit   port.AuditStore
	Indexer *service.Indexer
	Search  *service.SearchService

	tracing *observability.TracerProvider
}

// New connects every backend named in cfg. Progress goes to the log and to
// each extra notifier, in order.
func New(ctx context.Context, cfg *config.Config, notifiers ...port.Notifier) (*App, error) {
	tracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:    cfg.AppName,
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TraceSampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	vectors, settings, audit, err := openStore(ctx, cfg)
	if err != nil {
		tracing.Shutdown(ctx)
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Source:   github.NewClient(cfg.GitHubToken, cfg.GitHubAPIURL),
		Embedder: newEmbedder(cfg),
		Store:    vectors,
		Settings: settings,
		Audit:    audit,
		tracing:  tracing,
	}

	notifier := service.MultiNotifier(append([]port.Notifier{service.LogNotifier{}}, notifiers...))
	a.Indexer, err = service.NewIndexer(ctx, a.Source, a.Embedder, a.Store, a.Settings, notifier, cfg.TokenBudget)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Search = service.NewSearchService(a.Embedder, a.Store)
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config) (port.VectorStore, port.SettingsStore, port.AuditStore, error) {
	switch cfg.VectorBackend {
	case config.BackendPostgres:
		pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to database %s: %w", cfg.DSN(), err)
		}
		if err := pgStore.Migrate(ctx, cfg.EmbeddingDimension); err != nil {
			pgStore.Close()
			return nil, nil, nil, err
		}
		return store.NewVectorStore(pgStore, cfg.EmbeddingDimension), pgStore, pgStore, nil

	case config.BackendQdrant:
		qs, err := store.NewQdrantStore(ctx, cfg.QdrantAddr, cfg.QdrantCollection, cfg.EmbeddingDimension)
		if err != nil {
			return nil, nil, nil, err
		}
		return qs, store.NewFileSettings(cfg.SettingsFile), nil, nil

	case config.BackendMemory:
		return store.NewMemoryStore(cfg.EmbeddingDimension), store.NewFileSettings(cfg.SettingsFile), nil, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

func newEmbedder(cfg *config.Config) port.EmbeddingProvider {
	if cfg.EmbeddingProvider == config.ProviderOllama {
		model := cfg.OllamaEmbedModel
		if model == "" {
			model = cfg.EmbeddingModel
		}
		if model == "" {
			model = defaultOllamaModel
		}
		return ai.NewOllamaProvider(ai.OllamaConfig{
			BaseURL:   cfg.OllamaEmbedURL,
			Model:     model,
			Token:     cfg.OllamaEmbedToken,
			Dimension: cfg.EmbeddingDimension,
		})
	}
	return ai.NewOpenAIProvider(ai.OpenAIConfig{
		APIKey:    cfg.OpenAIAPIKey,
		BaseURL:   cfg.OpenAIBaseURL,
		Model:     cfg.EmbeddingModel,
		Dimension: cfg.EmbeddingDimension,
	})
}

// LogStartupStatus reports how much of the starred list is already indexed.
// Failures are logged, never returned.
func (a *App) LogStartupStatus(ctx context.Context) {
	st, err := a.Indexer.Status(ctx)
	if err != nil {
		slog.Warn("index status unavailable", "error", err)
		return
	}
	slog.Info("index status",
		"indexed", st.Indexed,
		"total", st.Total,
		"next_page", st.NextPage,
		"backend", a.Config.VectorBackend,
		"model", a.Embedder.ModelName(),
	)
}

// Close releases the store and flushes traces.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.tracing != nil {
		errs = append(errs, a.tracing.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
