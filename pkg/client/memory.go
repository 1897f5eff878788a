package client

import (
	"context"

	"github.com/embedworks/embedd/internal/channel"
	"github.com/embedworks/embedd/internal/protocol"
)

// memoryTransport drives a worker loop running in the same process.
type memoryTransport struct {
	peer *channel.MemoryPeer
}

// NewMemory attaches to the parent half of an in-process channel pair. The
// worker loop must already be running on the other half.
func NewMemory(ctx context.Context, peer *channel.MemoryPeer) (*Client, error) {
	return newClient(ctx, &memoryTransport{peer: peer})
}

func (t *memoryTransport) put(cmd protocol.Command) error {
	return t.peer.Put(cmd)
}

func (t *memoryTransport) get(ctx context.Context) (*Message, error) {
	resp, err := t.peer.Get(ctx)
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

func (t *memoryTransport) close() error {
	return t.peer.Close()
}
