package agent

import (
	"context"
	"log/slog"

	"difyrelay/internal/domain"
)

// MessageHandler processes one inbound message to completion.
type MessageHandler interface {
	Dispatch(ctx context.Context, msg domain.InboundMessage)
}

// SeenStore records processed message IDs. MarkSeen reports whether id was
// new.
type SeenStore interface {
	MarkSeen(ctx context.Context, channel, id string) (bool, error)
}

// LoopConfig holds the dependencies of the inbound loop.
type LoopConfig struct {
	Bus     domain.MessageBus
	Handler MessageHandler
	Seen    SeenStore // optional
	Logger  *slog.Logger
}

// Loop consumes the inbound bus and hands each message to the handler, one
// at a time, in delivery order.
type Loop struct {
	bus     domain.MessageBus
	handler MessageHandler
	seen    SeenStore
	logger  *slog.Logger
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		bus:     cfg.Bus,
		handler: cfg.Handler,
		seen:    cfg.Seen,
		logger:  cfg.Logger,
	}
}

// Run blocks until ctx is cancelled or the bus is closed.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("dispatch loop started", "dedup", l.seen != nil)

	inbound := l.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("dispatch loop stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound channel closed, dispatch loop stopping")
				return
			}
			if l.duplicate(ctx, msg) {
				continue
			}
			l.handler.Dispatch(ctx, msg)
		}
	}
}

// duplicate reports a redelivered message. Store failures let the message
// through.
func (l *Loop) duplicate(ctx context.Context, msg domain.InboundMessage) bool {
	if l.seen == nil || msg.ID == "" {
		return false
	}
	fresh, err := l.seen.MarkSeen(ctx, msg.Channel, msg.ID)
	if err != nil {
		l.logger.Warn("dedup store failed", "channel", msg.Channel, "id", msg.ID, "error", err)
		return false
	}
	if !fresh {
		l.logger.Debug("duplicate delivery skipped", "channel", msg.Channel, "id", msg.ID)
	}
	return !fresh
}
