package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/embedworks/embedd/internal/channel"
	"github.com/embedworks/embedd/internal/dispatch"
	"github.com/embedworks/embedd/internal/embedder"
	"github.com/embedworks/embedd/internal/modelcache"
	"github.com/embedworks/embedd/internal/protocol"
)

func startLoop(t *testing.T, provider embedder.Provider) (*channel.MemoryPeer, chan error) {
	t.Helper()

	ch, peer := channel.NewMemoryPair(4, 20*time.Millisecond)
	cache := modelcache.New(provider, "", zap.NewNop())
	loop := New(ch, dispatch.New(cache, nil), cache, zap.NewNop())

	errc := make(chan error, 1)
	go func() {
		errc <- loop.Run(context.Background())
	}()
	return peer, errc
}

func waitLoop(t *testing.T, errc chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not terminate")
		return nil
	}
}

func get(t *testing.T, peer *channel.MemoryPeer) protocol.Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := peer.Get(ctx)
	if err != nil {
		t.Fatalf("failed to get response: %v", err)
	}
	return resp
}

func TestLoopAnnouncesReadyFirst(t *testing.T) {
	peer, errc := startLoop(t, embedder.NewLocalProvider())

	ready := get(t, peer)
	if ready["status"] != "ready" {
		t.Fatalf("expected ready announcement, got %v", ready)
	}
	if ready["model"] != "all-MiniLM-L6-v2" {
		t.Errorf("expected default model in announcement, got %v", ready["model"])
	}

	// First info after readiness reports the eagerly loaded default.
	peer.Put(protocol.Command{"command": "info"})
	info := get(t, peer)
	if info["ready"] != true || info["model"] != "all-MiniLM-L6-v2" || info["dimension"] != 384 {
		t.Errorf("unexpected info after startup: %v", info)
	}

	peer.Put(protocol.Command{"command": "exit"})
	get(t, peer)
	if err := waitLoop(t, errc); err != nil {
		t.Errorf("unexpected loop error: %v", err)
	}
}

func TestLoopExitIsFinalResponse(t *testing.T) {
	peer, errc := startLoop(t, embedder.NewLocalProvider())
	get(t, peer) // ready

	peer.Put(protocol.Command{"action": "exit"})
	resp := get(t, peer)
	if resp["status"] != "exiting" {
		t.Errorf("expected exiting response, got %v", resp)
	}
	if err := waitLoop(t, errc); err != nil {
		t.Errorf("unexpected loop error: %v", err)
	}

	// Nothing is processed after exit.
	peer.Put(protocol.Command{"command": "info"})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := peer.Get(ctx); err == nil {
		t.Error("received a response after exit")
	}
}

func TestLoopStopsOnChannelClosure(t *testing.T) {
	peer, errc := startLoop(t, embedder.NewLocalProvider())
	get(t, peer) // ready

	peer.Close()
	if err := waitLoop(t, errc); err != nil {
		t.Errorf("expected clean termination on closure, got %v", err)
	}
}

func TestLoopSurvivesBadCommands(t *testing.T) {
	peer, errc := startLoop(t, embedder.NewLocalProvider())
	get(t, peer) // ready

	peer.Put(protocol.Command{"command": "frobnicate"})
	resp := get(t, peer)
	if resp["error"] != "Unknown action: frobnicate" {
		t.Errorf("unexpected error payload: %v", resp["error"])
	}

	peer.Put(protocol.Command{"command": "load", "model": "no-such-model"})
	resp = get(t, peer)
	if !resp.IsError() {
		t.Error("expected error response for failed load")
	}

	// The loop is still alive and serving.
	peer.Put(protocol.Command{"command": "embed", "texts": "still alive"})
	resp = get(t, peer)
	if resp.IsError() {
		t.Fatalf("loop did not recover: %v", resp["error"])
	}
	if len(resp["embeddings"].([][]float32)) != 1 {
		t.Errorf("unexpected embed result: %v", resp)
	}

	peer.Put(protocol.Command{"command": "exit"})
	get(t, peer)
	waitLoop(t, errc)
}

// panicProvider constructs models whose Encode panics, to exercise the
// loop-boundary recovery.
type panicProvider struct {
	inner embedder.Provider
}

func (p *panicProvider) Construct(ctx context.Context, name string) (embedder.Model, error) {
	model, err := p.inner.Construct(ctx, name)
	if err != nil {
		return nil, err
	}
	return &panicModel{Model: model}, nil
}

type panicModel struct {
	embedder.Model
}

func (m *panicModel) Encode(context.Context, []string) ([][]float32, error) {
	panic("encode blew up")
}

func TestLoopRecoversFromPanic(t *testing.T) {
	peer, errc := startLoop(t, &panicProvider{inner: embedder.NewLocalProvider()})
	get(t, peer) // ready

	peer.Put(protocol.Command{"command": "embed", "texts": "boom"})
	resp := get(t, peer)
	if !resp.IsError() {
		t.Fatalf("expected error response from panicking handler, got %v", resp)
	}
	if resp["error"] != "encode blew up" {
		t.Errorf("unexpected panic message: %v", resp["error"])
	}

	// The next command is processed normally.
	peer.Put(protocol.Command{"command": "info"})
	info := get(t, peer)
	if info["ready"] != true {
		t.Errorf("loop state lost after panic: %v", info)
	}

	peer.Put(protocol.Command{"command": "exit"})
	get(t, peer)
	if err := waitLoop(t, errc); err != nil {
		t.Errorf("unexpected loop error: %v", err)
	}
}

func TestLoopFailsWhenDefaultModelCannotLoad(t *testing.T) {
	ch, _ := channel.NewMemoryPair(1, 20*time.Millisecond)
	cache := modelcache.New(&failingProvider{}, "", zap.NewNop())
	loop := New(ch, dispatch.New(cache, nil), cache, zap.NewNop())

	if err := loop.Run(context.Background()); err == nil {
		t.Error("expected startup failure when the default model cannot load")
	}
}

type failingProvider struct{}

func (f *failingProvider) Construct(_ context.Context, name string) (embedder.Model, error) {
	return nil, fmt.Errorf("construction refused for %q", name)
}

func TestLoopSkipsUnreadableFrames(t *testing.T) {
	ch := &scriptedChannel{
		receives: []scripted{
			{err: fmt.Errorf("%w: bad frame", channel.ErrMalformed)},
			{err: channel.ErrTimedOut},
			{cmd: protocol.Command{"command": "exit"}},
		},
	}
	cache := modelcache.New(embedder.NewLocalProvider(), "", zap.NewNop())
	loop := New(ch, dispatch.New(cache, nil), cache, zap.NewNop())

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("unexpected loop error: %v", err)
	}

	// ready + the exit response only: the malformed frame got no response.
	if len(ch.sent) != 2 {
		t.Fatalf("expected 2 outbound messages, got %d: %v", len(ch.sent), ch.sent)
	}
	if ch.sent[0]["status"] != "ready" || ch.sent[1]["status"] != "exiting" {
		t.Errorf("unexpected outbound sequence: %v", ch.sent)
	}
}

type scripted struct {
	cmd protocol.Command
	err error
}

// scriptedChannel replays a fixed receive sequence and records sends.
type scriptedChannel struct {
	receives []scripted
	idx      int
	sent     []protocol.Response
}

func (c *scriptedChannel) Receive(context.Context) (protocol.Command, error) {
	if c.idx >= len(c.receives) {
		return nil, channel.ErrClosed
	}
	s := c.receives[c.idx]
	c.idx++
	return s.cmd, s.err
}

func (c *scriptedChannel) Send(resp protocol.Response) error {
	c.sent = append(c.sent, resp)
	return nil
}

func (c *scriptedChannel) Close() error { return nil }
