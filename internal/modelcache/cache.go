// Package modelcache owns the single active embedding model. Model
// construction is orders of magnitude slower than an encode call, so the
// cache amortizes it across the process lifetime; switching models is
// explicit and discards the previous handle.
package modelcache

import (
	"context"

	"go.uber.org/zap"

	"github.com/embedworks/embedd/internal/embedder"
	"github.com/embedworks/embedd/internal/protocol"
)

// Cache holds zero or one loaded model. The worker loop is strictly
// sequential, so the cache carries no lock: sequencing is the concurrency
// discipline.
type Cache struct {
	provider     embedder.Provider
	defaultModel string
	logger       *zap.Logger

	model embedder.Model
}

// New builds an empty cache. defaultModel is loaded by EnsureLoaded (and by
// Load when no name is given); empty means embedder.DefaultModel.
func New(provider embedder.Provider, defaultModel string, logger *zap.Logger) *Cache {
	if defaultModel == "" {
		defaultModel = embedder.DefaultModel
	}
	return &Cache{
		provider:     provider,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// Load makes name the active model. Requesting the already-active model is
// a no-op that still reports the current status. On construction failure
// the previously loaded model, if any, stays active.
func (c *Cache) Load(ctx context.Context, name string) (protocol.LoadResult, error) {
	if name == "" {
		name = c.defaultModel
	}

	if c.model == nil || c.model.Name() != name {
		model, err := c.provider.Construct(ctx, name)
		if err != nil {
			return protocol.LoadResult{}, err
		}
		c.model = model
		c.logger.Info("model loaded",
			zap.String("model", name),
			zap.Int("dimension", model.Dimension()),
		)
	}

	return protocol.LoadResult{
		Status:    "ok",
		Model:     c.model.Name(),
		Dimension: c.model.Dimension(),
	}, nil
}

// EnsureLoaded returns the active model, loading the default first if none
// is cached.
func (c *Cache) EnsureLoaded(ctx context.Context) (embedder.Model, error) {
	if c.model == nil {
		if _, err := c.Load(ctx, c.defaultModel); err != nil {
			return nil, err
		}
	}
	return c.model, nil
}

// Info reflects the current cache state. Pure read: it never triggers a
// load, and dimension always comes from the live handle.
func (c *Cache) Info() protocol.InfoResult {
	if c.model == nil {
		return protocol.InfoResult{Ready: false}
	}

	name := c.model.Name()
	dim := c.model.Dimension()
	return protocol.InfoResult{
		Model:     &name,
		Dimension: &dim,
		Ready:     true,
	}
}
