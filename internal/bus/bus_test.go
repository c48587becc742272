package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"difyrelay/internal/domain"
)

type stubTransport struct {
	name string
	sent []domain.OutboundMessage
}

func (s *stubTransport) Name() string { return s.name }
func (s *stubTransport) Start(ctx context.Context, b domain.MessageBus) error { return nil }
func (s *stubTransport) Stop() error { return nil }
func (s *stubTransport) Send(ctx context.Context, msg domain.OutboundMessage) error {
	s.sent = append(s.sent, msg)
	return nil
}
func (s *stubTransport) DownloadMedia(ctx context.Context, msg domain.InboundMessage) (*domain.MediaPayload, error) {
	return &domain.MediaPayload{Data: []byte(msg.MediaRef), MIMEType: "image/png"}, nil
}

func TestInMemoryBus_PublishSubscribe(t *testing.T) {
	b := New(2, testLogger())
	b.Publish(domain.InboundMessage{Channel: "whatsapp", ID: "1"})
	b.Publish(domain.InboundMessage{Channel: "whatsapp", ID: "2"})

	ch := b.Subscribe()
	assert.Equal(t, "1", (<-ch).ID)
	assert.Equal(t, "2", (<-ch).ID)

	b.Close()
	b.Close()
	_, ok := <-ch
	assert.False(t, ok)

	assert.NotPanics(t, func() { b.Publish(domain.InboundMessage{ID: "late"}) })
}

func TestInMemoryBus_RoutesToTransport(t *testing.T) {
	b := New(1, testLogger())
	wa := &stubTransport{name: "whatsapp"}
	tg := &stubTransport{name: "telegram"}
	b.Register(wa)
	b.Register(tg)

	require.NoError(t, b.SendOutbound(context.Background(), domain.OutboundMessage{Channel: "telegram", ChatID: "c", Text: "hi"}))
	assert.Empty(t, wa.sent)
	require.Len(t, tg.sent, 1)
	assert.Equal(t, "hi", tg.sent[0].Text)

	media, err := b.DownloadMedia(context.Background(), domain.InboundMessage{Channel: "whatsapp", MediaRef: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "m1", string(media.Data))
}

func TestInMemoryBus_UnknownChannel(t *testing.T) {
	b := New(1, testLogger())
	assert.Error(t, b.SendOutbound(context.Background(), domain.OutboundMessage{Channel: "nope"}))
	_, err := b.DownloadMedia(context.Background(), domain.InboundMessage{Channel: "nope"})
	assert.Error(t, err)
}
