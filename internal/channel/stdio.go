package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/embedworks/embedd/internal/protocol"
)

type inbound struct {
	cmd protocol.Command
	err error
}

// StdioChannel carries one JSON object per line: commands in on a reader,
// responses out on a writer. This is the transport the parent process uses
// when it spawns the worker with piped stdin/stdout.
type StdioChannel struct {
	writer   *bufio.Writer
	writeMu  sync.Mutex
	inbox    chan inbound
	interval time.Duration
	closer   io.Closer
}

// NewStdio wraps a reader/writer pair (normally os.Stdin and os.Stdout).
// pollInterval bounds each Receive call.
func NewStdio(r io.Reader, w io.Writer, pollInterval time.Duration) *StdioChannel {
	ch := &StdioChannel{
		writer:   bufio.NewWriter(w),
		inbox:    make(chan inbound),
		interval: pollInterval,
	}
	if c, ok := r.(io.Closer); ok {
		ch.closer = c
	}
	go ch.readLoop(r)
	return ch
}

func (ch *StdioChannel) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var cmd protocol.Command
		if err := json.Unmarshal(line, &cmd); err != nil {
			ch.inbox <- inbound{err: fmt.Errorf("%w: %v", ErrMalformed, err)}
			continue
		}
		ch.inbox <- inbound{cmd: cmd}
	}
	close(ch.inbox)
}

func (ch *StdioChannel) Receive(ctx context.Context) (protocol.Command, error) {
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

func (ch *StdioChannel) Send(resp protocol.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()

	if _, err := ch.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}
	return ch.writer.Flush()
}

func (ch *StdioChannel) Close() error {
	if ch.closer != nil {
		err := ch.closer.Close()
		if err != nil && !errors.Is(err, io.ErrClosedPipe) {
			return err
		}
	}
	return nil
}
