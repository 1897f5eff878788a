// Package embedder provides the embedding-model backends the worker loads
// and encodes with. A Provider resolves a model name into a Model handle;
// construction is the expensive step, encoding is comparatively cheap.
package embedder

import (
	"context"
	"errors"
)

// ErrUnknownModel is returned when a provider cannot resolve a model name.
var ErrUnknownModel = errors.New("unknown model")

// DefaultModel is loaded when no explicit model is requested.
const DefaultModel = "all-MiniLM-L6-v2"

// Model is one loaded embedding model.
type Model interface {
	// Name is the identifier the model was constructed with.
	Name() string
	// Dimension is the fixed length of every vector this model produces.
	Dimension() int
	// Encode returns one vector per input text, in input order.
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// Provider constructs model handles by name.
type Provider interface {
	Construct(ctx context.Context, name string) (Model, error)
}

// catalog maps known model names to their native dimensions.
var catalog = map[string]int{
	"all-MiniLM-L6-v2":        384,
	"all-mpnet-base-v2":       768,
	"paraphrase-MiniLM-L3-v2": 384,
	"text-embedding-3-small":  1536,
	"text-embedding-3-large":  3072,
}

// CatalogDimension returns the native dimension for a known model name.
func CatalogDimension(name string) (int, bool) {
	dim, ok := catalog[name]
	return dim, ok
}
