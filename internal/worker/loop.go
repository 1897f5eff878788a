// Package worker runs the command-processing loop: receive, dispatch,
// respond, repeat. One command is fully processed before the next is read,
// and no per-command failure is allowed to end the process.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/embedworks/embedd/internal/channel"
	"github.com/embedworks/embedd/internal/dispatch"
	"github.com/embedworks/embedd/internal/modelcache"
	"github.com/embedworks/embedd/internal/protocol"
)

// Loop owns the request/response lifecycle against one message channel.
type Loop struct {
	ch         channel.Channel
	dispatcher *dispatch.Dispatcher
	cache      *modelcache.Cache
	logger     *zap.Logger
}

func New(ch channel.Channel, dispatcher *dispatch.Dispatcher, cache *modelcache.Cache, logger *zap.Logger) *Loop {
	return &Loop{
		ch:         ch,
		dispatcher: dispatcher,
		cache:      cache,
		logger:     logger,
	}
}

// Run eagerly loads the default model, announces readiness, and processes
// commands until an exit command or channel closure. Only the startup load
// and the ready announcement can fail Run; everything after is contained.
func (l *Loop) Run(ctx context.Context) error {
	result, err := l.cache.Load(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to load default model: %w", err)
	}

	if err := l.ch.Send(protocol.Ready(result.Model)); err != nil {
		return fmt.Errorf("failed to announce readiness: %w", err)
	}
	l.logger.Info("worker ready",
		zap.String("model", result.Model),
		zap.Int("dimension", result.Dimension),
	)

	for {
		cmd, err := l.ch.Receive(ctx)
		switch {
		case errors.Is(err, channel.ErrTimedOut):
			// Routine poll cycle; keeps the loop responsive to closure.
			continue
		case errors.Is(err, channel.ErrClosed):
			l.logger.Info("channel closed, stopping")
			return nil
		case err != nil:
			// Unreadable frame: never validly received, so no response.
			l.logger.Warn("dropping unreadable command", zap.Error(err))
			continue
		}
		if cmd == nil {
			continue
		}

		resp := l.dispatch(ctx, cmd)
		if err := l.ch.Send(resp); err != nil {
			if errors.Is(err, channel.ErrClosed) {
				return nil
			}
			l.logger.Error("failed to send response", zap.Error(err))
		}

		if cmd.Action() == protocol.ActionExit {
			l.logger.Info("exit requested, stopping")
			return nil
		}
	}
}

// dispatch wraps the dispatcher so a panic in any handler becomes an error
// response instead of taking the worker down.
func (l *Loop) dispatch(ctx context.Context, cmd protocol.Command) (resp protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("dispatch panicked",
				zap.String("command", cmd.Action()),
				zap.Any("panic", r),
			)
			resp = protocol.Errorf(fmt.Sprint(r))
		}
	}()
	return l.dispatcher.Dispatch(ctx, cmd)
}
