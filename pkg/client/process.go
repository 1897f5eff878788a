package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/embedworks/embedd/internal/protocol"
)

// processTransport talks JSON lines to a worker subprocess over its stdio
// pipes. The worker's stderr is forwarded to this process's stderr so its
// logs stay visible. A reader goroutine owns the stdout pipe so get can
// honor its context even when the worker stops responding.
type processTransport struct {
	cmd     *exec.Cmd
	writer  io.WriteCloser
	inbox   chan procMessage
	writeMu sync.Mutex
}

type procMessage struct {
	msg *Message
	err error
}

// NewProcess spawns `binary args...` as a worker and waits for its ready
// announcement.
func NewProcess(ctx context.Context, binary string, args ...string) (*Client, error) {
	cmd := exec.Command(binary, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker process: %w", err)
	}

	go io.Copy(os.Stderr, stderr)

	t := &processTransport{
		cmd:    cmd,
		writer: stdin,
		inbox:  make(chan procMessage),
	}
	go t.readLines(stdout)

	c, err := newClient(ctx, t)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, err
	}
	return c, nil
}

func (t *processTransport) readLines(stdout io.Reader) {
	defer close(t.inbox)

	reader := bufio.NewReader(stdout)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			t.inbox <- procMessage{err: fmt.Errorf("failed to unmarshal response: %w", err)}
			continue
		}
		t.inbox <- procMessage{msg: &msg}
	}
}

func (t *processTransport) put(cmd protocol.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	return nil
}

func (t *processTransport) get(ctx context.Context) (*Message, error) {
	select {
	case in, ok := <-t.inbox:
		if !ok {
			return nil, fmt.Errorf("failed to read response: %w", io.ErrUnexpectedEOF)
		}
		return in.msg, in.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *processTransport) close() error {
	t.writer.Close()
	return t.cmd.Wait()
}
