package dispatch

import (
	"context"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/embedworks/embedd/internal/embedder"
	"github.com/embedworks/embedd/internal/modelcache"
	"github.com/embedworks/embedd/internal/protocol"
	"github.com/embedworks/embedd/internal/vectorcache"
)

func newDispatcher() (*Dispatcher, *modelcache.Cache) {
	cache := modelcache.New(embedder.NewLocalProvider(), "", zap.NewNop())
	return New(cache, nil), cache
}

func TestDispatchLoad(t *testing.T) {
	d, _ := newDispatcher()

	resp := d.Dispatch(context.Background(), protocol.Command{
		"command": "load",
		"model":   "all-mpnet-base-v2",
	})
	if resp.IsError() {
		t.Fatalf("unexpected error: %v", resp["error"])
	}
	if resp["model"] != "all-mpnet-base-v2" || resp["dimension"] != 768 {
		t.Errorf("unexpected load result: %v", resp)
	}
}

func TestDispatchLoadDefault(t *testing.T) {
	d, _ := newDispatcher()

	resp := d.Dispatch(context.Background(), protocol.Command{"command": "load"})
	if resp.IsError() {
		t.Fatalf("unexpected error: %v", resp["error"])
	}
	if resp["model"] != "all-MiniLM-L6-v2" {
		t.Errorf("expected default model, got %v", resp["model"])
	}
}

func TestDispatchLoadFailure(t *testing.T) {
	d, cache := newDispatcher()

	resp := d.Dispatch(context.Background(), protocol.Command{
		"command": "load",
		"model":   "no-such-model",
	})
	if !resp.IsError() {
		t.Fatal("expected error response for unknown model")
	}
	if cache.Info().Ready {
		t.Error("failed load left the cache ready")
	}
}

func TestDispatchEmbedStringEqualsSingletonList(t *testing.T) {
	d, _ := newDispatcher()

	asString := d.Dispatch(context.Background(), protocol.Command{
		"command": "embed",
		"texts":   "x",
	})
	asList := d.Dispatch(context.Background(), protocol.Command{
		"command": "embed",
		"texts":   []any{"x"},
	})

	for _, resp := range []protocol.Response{asString, asList} {
		if resp.IsError() {
			t.Fatalf("unexpected error: %v", resp["error"])
		}
		embeddings := resp["embeddings"].([][]float32)
		if len(embeddings) != 1 {
			t.Fatalf("expected 1 embedding, got %d", len(embeddings))
		}
	}

	if !reflect.DeepEqual(asString["embeddings"], asList["embeddings"]) {
		t.Error("bare string and one-element list produced different vectors")
	}
}

func TestDispatchEmbedAutoLoads(t *testing.T) {
	d, cache := newDispatcher()

	resp := d.Dispatch(context.Background(), protocol.Command{
		"command": "embed",
		"texts":   []any{"hello"},
	})
	if resp.IsError() {
		t.Fatalf("unexpected error: %v", resp["error"])
	}
	if resp["model"] != "all-MiniLM-L6-v2" {
		t.Errorf("expected auto-loaded default model, got %v", resp["model"])
	}
	if resp["dimension"] != 384 {
		t.Errorf("expected dimension 384, got %v", resp["dimension"])
	}

	info := cache.Info()
	if !info.Ready {
		t.Error("embed did not leave the cache in a ready state")
	}
}

func TestDispatchEmbedEmpty(t *testing.T) {
	d, _ := newDispatcher()

	resp := d.Dispatch(context.Background(), protocol.Command{
		"command": "embed",
		"texts":   []any{},
	})
	if resp.IsError() {
		t.Fatalf("unexpected error: %v", resp["error"])
	}
	if len(resp["embeddings"].([][]float32)) != 0 {
		t.Errorf("expected empty embeddings, got %v", resp["embeddings"])
	}
	if resp["dimension"] != 0 {
		t.Errorf("expected dimension 0 for empty input, got %v", resp["dimension"])
	}
}

func TestDispatchEmbedOrderPreserved(t *testing.T) {
	d, _ := newDispatcher()

	texts := []string{"first", "second", "third"}
	batch := d.Dispatch(context.Background(), protocol.Command{
		"command": "embed",
		"texts":   []any{"first", "second", "third"},
	})
	if batch.IsError() {
		t.Fatalf("unexpected error: %v", batch["error"])
	}
	got := batch["embeddings"].([][]float32)

	for i, text := range texts {
		single := d.Dispatch(context.Background(), protocol.Command{
			"command": "embed",
			"texts":   text,
		})
		want := single["embeddings"].([][]float32)[0]
		if !reflect.DeepEqual(got[i], want) {
			t.Errorf("embeddings[%d] does not correspond to %q", i, text)
		}
	}
}

func TestDispatchEmbedViaDataPayload(t *testing.T) {
	d, _ := newDispatcher()

	resp := d.Dispatch(context.Background(), protocol.Command{
		"command": "embed",
		"data":    map[string]any{"texts": []any{"a", "b"}},
	})
	if resp.IsError() {
		t.Fatalf("unexpected error: %v", resp["error"])
	}
	if len(resp["embeddings"].([][]float32)) != 2 {
		t.Errorf("expected 2 embeddings, got %v", resp["embeddings"])
	}
}

func TestDispatchEmbedRejectsNonStringTexts(t *testing.T) {
	d, _ := newDispatcher()

	resp := d.Dispatch(context.Background(), protocol.Command{
		"command": "embed",
		"texts":   []any{"ok", 42},
	})
	if !resp.IsError() {
		t.Fatal("expected error for non-string texts entry")
	}
}

func TestDispatchInfoHasNoSideEffects(t *testing.T) {
	d, cache := newDispatcher()

	resp := d.Dispatch(context.Background(), protocol.Command{"command": "info"})
	if resp["ready"] != false {
		t.Errorf("expected ready false, got %v", resp["ready"])
	}
	if cache.Info().Ready {
		t.Error("info dispatched a load")
	}
}

func TestDispatchExit(t *testing.T) {
	d, _ := newDispatcher()

	resp := d.Dispatch(context.Background(), protocol.Command{"action": "exit"})
	if resp["status"] != "exiting" {
		t.Errorf("expected exiting status, got %v", resp)
	}
}

func TestDispatchUnknownAction(t *testing.T) {
	d, cache := newDispatcher()

	resp := d.Dispatch(context.Background(), protocol.Command{"action": "frobnicate"})
	if resp["error"] != "Unknown action: frobnicate" {
		t.Errorf("unexpected error payload: %v", resp["error"])
	}
	if cache.Info().Ready {
		t.Error("unknown action mutated the model cache")
	}
}

func TestDispatchEmbedWithVectorCache(t *testing.T) {
	vectors := vectorcache.New(time.Minute, 128)
	defer vectors.Stop()

	cache := modelcache.New(embedder.NewLocalProvider(), "", zap.NewNop())
	d := New(cache, vectors)

	first := d.Dispatch(context.Background(), protocol.Command{
		"command": "embed",
		"texts":   []any{"warm", "cold"},
	})
	if first.IsError() {
		t.Fatalf("unexpected error: %v", first["error"])
	}
	if vectors.Len() != 2 {
		t.Errorf("expected 2 cached vectors, got %d", vectors.Len())
	}

	// Mixed hit/miss batch must still come back in input order.
	second := d.Dispatch(context.Background(), protocol.Command{
		"command": "embed",
		"texts":   []any{"new", "warm"},
	})
	if second.IsError() {
		t.Fatalf("unexpected error: %v", second["error"])
	}
	got := second["embeddings"].([][]float32)
	warm := first["embeddings"].([][]float32)[0]
	if !reflect.DeepEqual(got[1], warm) {
		t.Error("cached vector not returned in the right position")
	}
	if reflect.DeepEqual(got[0], warm) {
		t.Error("miss position overwritten by cached vector")
	}
}
