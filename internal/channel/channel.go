// Package channel provides the message transports the worker loop runs
// against: JSON lines over stdio pipes, length-prefixed msgpack frames over
// TCP, and an in-process pair for embedding the worker in another program.
package channel

import (
	"context"
	"errors"

	"github.com/embedworks/embedd/internal/protocol"
)

var (
	// ErrTimedOut means no message arrived within the poll interval.
	// Routine, not a failure: the loop re-polls.
	ErrTimedOut = errors.New("receive timed out")
	// ErrClosed means the peer will never send again.
	ErrClosed = errors.New("channel closed")
	// ErrMalformed means a frame was received but could not be decoded.
	ErrMalformed = errors.New("malformed frame")
)

// Channel is a bidirectional, message-oriented transport carrying one
// command or response per message.
type Channel interface {
	// Receive blocks for at most the channel's poll interval and returns
	// the next command, ErrTimedOut, ErrClosed, or an error wrapping
	// ErrMalformed.
	Receive(ctx context.Context) (protocol.Command, error)
	// Send enqueues one outbound response. Fire-and-forget: no ack.
	Send(resp protocol.Response) error
	Close() error
}
