// Package dispatch routes one command to one of the supported operations
// and produces exactly one response. It owns input normalization (action
// keys, payload fallback, texts shape) but no model state of its own.
package dispatch

import (
	"context"
	"fmt"

	"github.com/embedworks/embedd/internal/modelcache"
	"github.com/embedworks/embedd/internal/protocol"
	"github.com/embedworks/embedd/internal/vectorcache"
)

// Dispatcher translates commands into model-cache operations.
type Dispatcher struct {
	cache   *modelcache.Cache
	vectors *vectorcache.Cache
}

// New builds a dispatcher over the given model cache. vectors may be nil to
// disable embedding memoization.
func New(cache *modelcache.Cache, vectors *vectorcache.Cache) *Dispatcher {
	return &Dispatcher{cache: cache, vectors: vectors}
}

// Dispatch executes cmd and returns its response. All failures are
// converted to the error response shape; Dispatch never returns an error to
// the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd protocol.Command) protocol.Response {
	action := cmd.Action()
	payload := cmd.Payload()

	switch action {
	case protocol.ActionLoad:
		name, _ := payload["model"].(string)
		result, err := d.cache.Load(ctx, name)
		if err != nil {
			return protocol.Errorf(err.Error())
		}
		return result.Response()

	case protocol.ActionEmbed:
		texts, err := normalizeTexts(payload["texts"])
		if err != nil {
			return protocol.Errorf(err.Error())
		}
		result, err := d.embed(ctx, texts)
		if err != nil {
			return protocol.Errorf(err.Error())
		}
		return result.Response()

	case protocol.ActionInfo:
		return d.cache.Info().Response()

	case protocol.ActionExit:
		return protocol.Exiting()

	default:
		return protocol.Errorf(fmt.Sprintf("Unknown action: %s", action))
	}
}

func (d *Dispatcher) embed(ctx context.Context, texts []string) (protocol.EmbedResult, error) {
	model, err := d.cache.EnsureLoaded(ctx)
	if err != nil {
		return protocol.EmbedResult{}, err
	}

	if len(texts) == 0 {
		return protocol.EmbedResult{
			Embeddings: [][]float32{},
			Model:      model.Name(),
			Dimension:  0,
		}, nil
	}

	embeddings := make([][]float32, len(texts))

	// Encode only the cache misses, then fill results back in input order.
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if d.vectors != nil {
			if vec, ok := d.vectors.Get(model.Name(), text); ok {
				embeddings[i] = vec
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		encoded, err := model.Encode(ctx, missing)
		if err != nil {
			return protocol.EmbedResult{}, err
		}
		if len(encoded) != len(missing) {
			return protocol.EmbedResult{}, fmt.Errorf("model returned %d vectors for %d texts", len(encoded), len(missing))
		}
		for j, vec := range encoded {
			embeddings[missingIdx[j]] = vec
			if d.vectors != nil {
				d.vectors.Set(model.Name(), missing[j], vec)
			}
		}
	}

	return protocol.EmbedResult{
		Embeddings: embeddings,
		Model:      model.Name(),
		Dimension:  len(embeddings[0]),
	}, nil
}

// normalizeTexts accepts a bare string, a []string, or a JSON-decoded
// []any of strings. A bare string becomes a one-element list, so embedding
// one string and embedding a one-element list produce the same shape.
func normalizeTexts(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return []string{}, nil
	case string:
		return []string{t}, nil
	case []string:
		return t, nil
	case []any:
		texts := make([]string, len(t))
		for i, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("texts[%d] is not a string", i)
			}
			texts[i] = s
		}
		return texts, nil
	default:
		return nil, fmt.Errorf("texts must be a string or a list of strings")
	}
}
