package domain

import "context"

// MessageBus moves inbound messages from transports to the dispatcher and
// routes replies and media downloads back to the originating transport.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	Register(t Transport)
	SendOutbound(ctx context.Context, msg OutboundMessage) error
	DownloadMedia(ctx context.Context, msg InboundMessage) (*MediaPayload, error)
	Close()
}
