package client

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestProcessTransportGetHonorsContext(t *testing.T) {
	// A reader that never produces a line stands in for a wedged worker.
	pr, pw := io.Pipe()
	defer pw.Close()

	tr := &processTransport{inbox: make(chan procMessage)}
	go tr.readLines(pr)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := tr.get(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("get still blocked after its context expired")
	}
}

func TestProcessTransportReadsLines(t *testing.T) {
	tr := &processTransport{inbox: make(chan procMessage)}
	go tr.readLines(strings.NewReader(
		"{\"status\": \"ready\", \"model\": \"m\"}\n" +
			"not json\n" +
			"{\"dimension\": 384}\n",
	))

	ctx := context.Background()

	msg, err := tr.get(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Status != "ready" || msg.Model != "m" {
		t.Errorf("unexpected message: %+v", msg)
	}

	if _, err := tr.get(ctx); err == nil {
		t.Error("expected an error for an unparseable line")
	}

	msg, err = tr.get(ctx)
	if err != nil {
		t.Fatalf("unexpected error after bad line: %v", err)
	}
	if msg.Dimension != 384 {
		t.Errorf("expected dimension 384, got %d", msg.Dimension)
	}

	// The reader hit EOF; further gets report the closed stream.
	if _, err := tr.get(ctx); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected ErrUnexpectedEOF after EOF, got %v", err)
	}
}
