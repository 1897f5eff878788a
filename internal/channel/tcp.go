package channel

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/embedworks/embedd/internal/protocol"
)

// TCPChannel listens for a single client and exchanges length-prefixed
// msgpack frames: a 4-byte big-endian size header followed by the encoded
// message. The protocol is one client, one command at a time; a second
// connection is not accepted until the first closes.
type TCPChannel struct {
	listener net.Listener
	logger   *zap.Logger
	interval time.Duration

	inbox chan inbound

	connected chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
	conn      net.Conn
}

// NewTCP binds addr and starts accepting in the background. Sends block
// until a client has connected, so the startup ready announcement is
// delivered to the first client.
func NewTCP(addr string, pollInterval time.Duration, logger *zap.Logger) (*TCPChannel, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	ch := &TCPChannel{
		listener:  listener,
		logger:    logger,
		interval:  pollInterval,
		inbox:     make(chan inbound),
		connected: make(chan struct{}),
		done:      make(chan struct{}),
	}
	go ch.acceptLoop()
	return ch, nil
}

// Addr returns the bound listen address.
func (ch *TCPChannel) Addr() net.Addr {
	return ch.listener.Addr()
}

func (ch *TCPChannel) acceptLoop() {
	defer close(ch.inbox)

	for {
		conn, err := ch.listener.Accept()
		if err != nil {
			return
		}

		ch.writeMu.Lock()
		ch.conn = conn
		ch.writeMu.Unlock()

		select {
		case <-ch.connected:
		default:
			close(ch.connected)
		}

		ch.logger.Info("client connected", zap.String("remote", conn.RemoteAddr().String()))
		ch.readFrames(conn)
		conn.Close()
	}
}

func (ch *TCPChannel) readFrames(conn net.Conn) {
	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		size := binary.BigEndian.Uint32(header)
		if size == 0 {
			continue
		}

		frame := make([]byte, size)
		if _, err := io.ReadFull(conn, frame); err != nil {
			return
		}

		var raw map[string]any
		if err := msgpack.Unmarshal(frame, &raw); err != nil {
			ch.inbox <- inbound{err: fmt.Errorf("%w: %v", ErrMalformed, err)}
			continue
		}
		ch.inbox <- inbound{cmd: protocol.Command(raw)}
	}
}

func (ch *TCPChannel) Receive(ctx context.Context) (protocol.Command, error) {
	timer := time.NewTimer(ch.interval)
	defer timer.Stop()

	select {
	case in, ok := <-ch.inbox:
		if !ok {
			return nil, ErrClosed
		}
		return in.cmd, in.err
	case <-timer.C:
		return nil, ErrTimedOut
	case <-ctx.Done():
		return nil, ErrClosed
	}
}

func (ch *TCPChannel) Send(resp protocol.Response) error {
	// Waiting for the first client must not outlive the channel itself:
	// Close unblocks a Send issued before anyone connected.
	select {
	case <-ch.connected:
	case <-ch.done:
		return ErrClosed
	}

	data, err := msgpack.Marshal(map[string]any(resp))
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()

	if ch.conn == nil {
		return ErrClosed
	}
	if _, err := ch.conn.Write(frame); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}
	return nil
}

func (ch *TCPChannel) Close() error {
	ch.closeOnce.Do(func() { close(ch.done) })
	ch.writeMu.Lock()
	if ch.conn != nil {
		ch.conn.Close()
	}
	ch.writeMu.Unlock()
	return ch.listener.Close()
}
