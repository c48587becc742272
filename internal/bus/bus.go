package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"difyrelay/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based message bus. Replies and media downloads
// are routed to the transport registered under the message's channel name.
type InMemoryBus struct {
	inbound    chan domain.InboundMessage
	transports map[string]domain.Transport
	mu         sync.RWMutex
	closed     bool
	logger     *slog.Logger
}

var _ domain.MessageBus = (*InMemoryBus)(nil)

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryBus{
		inbound:    make(chan domain.InboundMessage, bufferSize),
		transports: make(map[string]domain.Transport),
		logger:     logger,
	}
}

// Publish blocks up to publishTimeout if the bus is full instead of dropping.
func (b *InMemoryBus) Publish(msg domain.InboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.inbound <- msg:
	default:
		b.logger.Warn("inbound bus full, waiting", "channel", msg.Channel, "chat", msg.ChatID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- msg:
			b.logger.Info("message delivered after wait", "channel", msg.Channel)
		case <-timer.C:
			b.logger.Error("message dropped: bus full",
				"channel", msg.Channel,
				"chat", msg.ChatID,
				"wait", publishTimeout,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.InboundMessage {
	return b.inbound
}

func (b *InMemoryBus) Register(t domain.Transport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transports[t.Name()] = t
}

func (b *InMemoryBus) transport(name string) (domain.Transport, error) {
	b.mu.RLock()
	t, ok := b.transports[name]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no transport registered for channel %q", name)
	}
	return t, nil
}

func (b *InMemoryBus) SendOutbound(ctx context.Context, msg domain.OutboundMessage) error {
	t, err := b.transport(msg.Channel)
	if err != nil {
		b.logger.Warn("outbound dropped", "channel", msg.Channel, "error", err)
		return err
	}
	return t.Send(ctx, msg)
}

func (b *InMemoryBus) DownloadMedia(ctx context.Context, msg domain.InboundMessage) (*domain.MediaPayload, error) {
	t, err := b.transport(msg.Channel)
	if err != nil {
		return nil, err
	}
	return t.DownloadMedia(ctx, msg)
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
