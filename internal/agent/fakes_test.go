package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"difyrelay/internal/audio"
	"difyrelay/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeBus struct {
	mu       sync.Mutex
	sent     []domain.OutboundMessage
	download *domain.MediaPayload
	dlErr    error
	sendErr  func(domain.OutboundMessage) error
	inbound  chan domain.InboundMessage
}

func (b *fakeBus) Publish(msg domain.InboundMessage) { b.inbound <- msg }
func (b *fakeBus) Subscribe() <-chan domain.InboundMessage { return b.inbound }
func (b *fakeBus) Register(t domain.Transport) {}
func (b *fakeBus) Close() { close(b.inbound) }

func (b *fakeBus) SendOutbound(ctx context.Context, msg domain.OutboundMessage) error {
	if b.sendErr != nil {
		if err := b.sendErr(msg); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, msg)
	return nil
}

func (b *fakeBus) DownloadMedia(ctx context.Context, msg domain.InboundMessage) (*domain.MediaPayload, error) {
	if b.dlErr != nil {
		return nil, b.dlErr
	}
	cp := *b.download
	return &cp, nil
}

func (b *fakeBus) texts() []string {
	var out []string
	for _, m := range b.sent {
		if m.Media == nil {
			out = append(out, m.Text)
		}
	}
	return out
}

type fakeBackend struct {
	chats      []domain.ChatRequest
	uploads    []domain.MediaPayload
	transcribe []domain.MediaPayload

	answer     string
	chatErr    error
	uploadErr  error
	transcript string
	panicOn    bool
}

func (f *fakeBackend) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if f.panicOn {
		panic("backend exploded")
	}
	f.chats = append(f.chats, req)
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &domain.ChatResponse{Answer: f.answer}, nil
}

func (f *fakeBackend) UploadFile(ctx context.Context, user string, file domain.MediaPayload) (string, error) {
	f.uploads = append(f.uploads, file)
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return fmt.Sprintf("file-%d", len(f.uploads)), nil
}

func (f *fakeBackend) AudioToText(ctx context.Context, user string, a domain.MediaPayload) (string, error) {
	f.transcribe = append(f.transcribe, a)
	return f.transcript, nil
}

// rejection mimics the backend's typed error.
type rejection struct {
	contentPolicy, emptyQuery bool
}

func (r *rejection) Error() string { return "rejected" }
func (r *rejection) IsContentPolicy() bool { return r.contentPolicy }
func (r *rejection) IsEmptyQuery() bool { return r.emptyQuery }

type fakeSpeech struct {
	texts []string
	urls  []string
	errAt int // 1-based call that fails; 0 never
	err   error
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text string) (string, error) {
	f.texts = append(f.texts, text)
	n := len(f.texts)
	if n == f.errAt {
		return "", f.err
	}
	if n <= len(f.urls) {
		return f.urls[n-1], nil
	}
	return fmt.Sprintf("https://tts.example/%d.wav", n), nil
}

type fakeFetcher struct {
	data    map[string][]byte
	fetched []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.fetched = append(f.fetched, url)
	if d, ok := f.data[url]; ok {
		return d, nil
	}
	return nil, errors.New("status code 404")
}

type transcodeCall struct {
	from, to audio.Format
	codec    audio.Codec
	in       string
}

type fakeTranscoder struct {
	calls      []transcodeCall
	concats    [][]string
	failFrom   audio.Format
	concatFail bool
}

func (f *fakeTranscoder) Transcode(ctx context.Context, in []byte, from, to audio.Format, codec audio.Codec) ([]byte, error) {
	f.calls = append(f.calls, transcodeCall{from: from, to: to, codec: codec, in: string(in)})
	if from == f.failFrom {
		return nil, &audio.TranscodeError{Op: "transcode", Err: errors.New("exit status 1")}
	}
	return []byte(string(to) + ":" + string(in)), nil
}

func (f *fakeTranscoder) Concatenate(ctx context.Context, segments [][]byte) ([]byte, error) {
	parts := make([]string, len(segments))
	for i, s := range segments {
		parts[i] = string(s)
	}
	f.concats = append(f.concats, parts)
	if f.concatFail {
		return nil, errors.New("concat failed")
	}
	if len(segments) == 0 {
		return nil, audio.ErrNoSegments
	}
	return []byte(strings.Join(parts, "|")), nil
}

type harness struct {
	bus        *fakeBus
	backend    *fakeBackend
	speech     *fakeSpeech
	fetcher    *fakeFetcher
	transcoder *fakeTranscoder
	d          *Dispatcher
}

func newHarness(maxBlock int) *harness {
	h := &harness{
		bus:        &fakeBus{inbound: make(chan domain.InboundMessage, 8)},
		backend:    &fakeBackend{},
		speech:     &fakeSpeech{},
		fetcher:    &fakeFetcher{data: map[string][]byte{}},
		transcoder: &fakeTranscoder{},
	}
	h.d = NewDispatcher(DispatcherConfig{
		Bus:            h.bus,
		Backend:        h.backend,
		Speech:         h.speech,
		Fetcher:        h.fetcher,
		Transcoder:     h.transcoder,
		MaxBlockLength: maxBlock,
		Logger:         testLogger(),
	})
	return h
}

func directText(body string) domain.InboundMessage {
	return domain.InboundMessage{
		Channel:  "whatsapp",
		ID:       "wamid.1",
		ChatID:   "5511999990000",
		SenderID: "5511999990000",
		Kind:     domain.KindText,
		Type:     "text",
		Body:     body,
	}
}

func directMedia(typ, body string) domain.InboundMessage {
	msg := directText(body)
	msg.Kind = domain.KindMedia
	msg.Type = typ
	msg.HasMedia = true
	msg.MediaRef = "media-1"
	return msg
}
