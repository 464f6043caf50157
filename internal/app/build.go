package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ellahq/ella/internal/chat"
	"github.com/ellahq/ella/internal/config"
	"github.com/ellahq/ella/internal/history"
	"github.com/ellahq/ella/internal/httpapi"
	"github.com/ellahq/ella/internal/observability"
	"github.com/ellahq/ella/internal/provider"
)

// BuildResult holds the wired service and its shutdown hook.
type BuildResult struct {
	Config  config.Config
	API     *httpapi.Server
	Engine  *chat.Engine
	Store   history.Store
	Metrics *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, log zerolog.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("history store init failed: %w", err)
	}

	client, err := provider.NewClient(provider.Config{
		Mode:    cfg.ProviderMode,
		URL:     cfg.ProviderURL,
		APIKey:  cfg.ProviderAPIKey,
		Model:   cfg.ProviderModel,
		Timeout: cfg.ProviderTimeout,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("provider client init failed: %w", err)
	}

	engine := chat.NewEngine(store, client, cfg.PersonaInstruction, cfg.ContextWindow, metrics, log)
	api := httpapi.New(cfg, engine, metrics, log)

	return &BuildResult{
		Config:  cfg,
		API:     api,
		Engine:  engine,
		Store:   store,
		Metrics: metrics,
		Cleanup: store.Close,
	}, nil
}
