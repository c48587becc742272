package domain

import "context"

// Transport is a chat network the relay listens on and replies through.
type Transport interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	DownloadMedia(ctx context.Context, msg InboundMessage) (*MediaPayload, error)
	Send(ctx context.Context, msg OutboundMessage) error
}
