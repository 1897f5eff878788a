// Package app wires the configured provider, caches, dispatcher, and loop
// together for the cmd entrypoints.
package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/embedworks/embedd/internal/channel"
	"github.com/embedworks/embedd/internal/config"
	"github.com/embedworks/embedd/internal/dispatch"
	"github.com/embedworks/embedd/internal/embedder"
	"github.com/embedworks/embedd/internal/modelcache"
	"github.com/embedworks/embedd/internal/vectorcache"
	"github.com/embedworks/embedd/internal/worker"
	"github.com/embedworks/embedd/pkg/logger"
)

type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	vectors *vectorcache.Cache
}

func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	a := &App{cfg: cfg, logger: log}

	if cfg.Cache != nil && cfg.Cache.Enabled {
		a.vectors = vectorcache.New(
			time.Duration(cfg.Cache.TTLSecs)*time.Second,
			uint64(cfg.Cache.MaxEntries),
		)
	}

	return a, nil
}

func (a *App) Config() *config.Config {
	return a.cfg
}

func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Provider builds the embedding backend named by the config.
func (a *App) Provider() (embedder.Provider, error) {
	switch a.cfg.Provider {
	case config.ProviderLocal, "":
		return embedder.NewLocalProvider(), nil
	case config.ProviderOpenAI:
		if a.cfg.OpenAI == nil || a.cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return embedder.NewOpenAIProvider(a.cfg.OpenAI.APIKey, a.cfg.OpenAI.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", a.cfg.Provider)
	}
}

// NewWorkerLoop assembles a loop over the given channel with a fresh model
// cache.
func (a *App) NewWorkerLoop(ch channel.Channel) (*worker.Loop, error) {
	provider, err := a.Provider()
	if err != nil {
		return nil, err
	}

	cache := modelcache.New(provider, a.cfg.DefaultModel, a.logger)
	dispatcher := dispatch.New(cache, a.vectors)
	return worker.New(ch, dispatcher, cache, a.logger), nil
}

func (a *App) Close() {
	if a.vectors != nil {
		a.vectors.Stop()
	}
	a.logger.Sync()
}
