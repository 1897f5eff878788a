package channel

import (
	"context"
	"sync"
	"time"

	"github.com/embedworks/embedd/internal/protocol"
)

// MemoryChannel is the worker-side half of an in-process duplex built on
// buffered Go channels. It lets the serve gateway (and tests) run the worker
// loop in the same process without pipes.
type MemoryChannel struct {
	commands  chan protocol.Command
	responses chan protocol.Response
	closeCh   chan struct{}
	closeOnce *sync.Once
	interval  time.Duration
}

// MemoryPeer is the parent-side half: it sends commands and reads responses.
type MemoryPeer struct {
	commands  chan protocol.Command
	responses chan protocol.Response
	closeCh   chan struct{}
	closeOnce *sync.Once
}

// NewMemoryPair builds a connected channel/peer pair with the given buffer
// size. pollInterval bounds the worker side's Receive.
func NewMemoryPair(buffer int, pollInterval time.Duration) (*MemoryChannel, *MemoryPeer) {
	commands := make(chan protocol.Command, buffer)
	responses := make(chan protocol.Response, buffer)
	closeCh := make(chan struct{})
	closeOnce := new(sync.Once)

	ch := &MemoryChannel{
		commands:  commands,
		responses: responses,
		closeCh:   closeCh,
		closeOnce: closeOnce,
		interval:  pollInterval,
	}
	peer := &MemoryPeer{
		commands:  commands,
		responses: responses,
		closeCh:   closeCh,
		closeOnce: closeOnce,
	}
	return ch, peer
}

func (ch *MemoryChannel) Receive(ctx context.Context) (protocol.Command, error) {
	timer := time.NewTimer(ch.interval)
	defer timer.Stop()

	select {
	case cmd := <-ch.commands:
		return cmd, nil
	case <-ch.closeCh:
		return nil, ErrClosed
	case <-timer.C:
		return nil, ErrTimedOut
	case <-ctx.Done():
		return nil, ErrClosed
	}
}

func (ch *MemoryChannel) Send(resp protocol.Response) error {
	select {
	case ch.responses <- resp:
		return nil
	case <-ch.closeCh:
		return ErrClosed
	}
}

// Close is shared with the peer: either end may close, concurrently, once
// apiece or many times over.
func (ch *MemoryChannel) Close() error {
	ch.closeOnce.Do(func() { close(ch.closeCh) })
	return nil
}

// Put enqueues one command for the worker.
func (p *MemoryPeer) Put(cmd protocol.Command) error {
	select {
	case p.commands <- cmd:
		return nil
	case <-p.closeCh:
		return ErrClosed
	}
}

// Get blocks until the worker sends a response or the pair is closed.
func (p *MemoryPeer) Get(ctx context.Context) (protocol.Response, error) {
	select {
	case resp := <-p.responses:
		return resp, nil
	case <-p.closeCh:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close ends the conversation; the worker loop sees channel closure and
// terminates.
func (p *MemoryPeer) Close() error {
	p.closeOnce.Do(func() { close(p.closeCh) })
	return nil
}
