// Package client is the parent-process side of the worker protocol. It
// drives one worker, spawned as a subprocess over stdio pipes or embedded
// in-process over a memory channel, one command at a time.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/embedworks/embedd/internal/protocol"
)

// Message is the decoded worker response. Fields are action-specific;
// unused ones stay zero.
type Message struct {
	Status     string      `json:"status,omitempty" msgpack:"status,omitempty"`
	Model      string      `json:"model,omitempty" msgpack:"model,omitempty"`
	Dimension  int         `json:"dimension,omitempty" msgpack:"dimension,omitempty"`
	Ready      bool        `json:"ready,omitempty" msgpack:"ready,omitempty"`
	Embeddings [][]float32 `json:"embeddings,omitempty" msgpack:"embeddings,omitempty"`
	Error      string      `json:"error,omitempty" msgpack:"error,omitempty"`
}

// transport moves one command out and one message back.
type transport interface {
	put(cmd protocol.Command) error
	get(ctx context.Context) (*Message, error)
	close() error
}

// Client wraps a transport with the one-command-at-a-time discipline the
// protocol requires. Safe for concurrent use; calls are serialized.
type Client struct {
	mu    sync.Mutex
	t     transport
	model string
	dim   int
}

// handshake waits for the worker's ready announcement.
func newClient(ctx context.Context, t transport) (*Client, error) {
	msg, err := t.get(ctx)
	if err != nil {
		t.close()
		return nil, fmt.Errorf("failed to get ready signal: %w", err)
	}
	if msg.Status != "ready" {
		t.close()
		return nil, fmt.Errorf("unexpected status: %s", msg.Status)
	}

	return &Client{t: t, model: msg.Model}, nil
}

// roundTrip sends one command and reads its single response.
func (c *Client) roundTrip(ctx context.Context, cmd protocol.Command) (*Message, error) {
	if err := c.t.put(cmd); err != nil {
		return nil, err
	}
	msg, err := c.t.get(ctx)
	if err != nil {
		return nil, err
	}
	if msg.Error != "" {
		return nil, fmt.Errorf("worker error: %s", msg.Error)
	}
	return msg, nil
}

// LoadModel switches the worker to a different embedding model.
func (c *Client) LoadModel(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, err := c.roundTrip(ctx, protocol.Command{"command": protocol.ActionLoad, "model": name})
	if err != nil {
		return err
	}
	c.model = msg.Model
	c.dim = msg.Dimension
	return nil
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, err := c.roundTrip(ctx, protocol.Command{"command": protocol.ActionEmbed, "texts": texts})
	if err != nil {
		return nil, err
	}
	c.model = msg.Model
	if msg.Dimension > 0 {
		c.dim = msg.Dimension
	}
	return msg.Embeddings, nil
}

// Info reads the worker's model state without side effects.
func (c *Client) Info(ctx context.Context) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.roundTrip(ctx, protocol.Command{"command": protocol.ActionInfo})
}

// Model returns the last model name the worker reported.
func (c *Client) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// Dimension returns the last dimension the worker reported.
func (c *Client) Dimension() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dim
}

// Close asks the worker to exit and tears down the transport.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Best effort: a worker that already died cannot acknowledge.
	if err := c.t.put(protocol.Command{"command": protocol.ActionExit}); err == nil {
		c.t.get(context.Background())
	}
	return c.t.close()
}

// decodeResponse converts a raw response map into a Message.
func decodeResponse(resp protocol.Response) (*Message, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &msg, nil
}
