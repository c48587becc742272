package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"difyrelay/internal/audio"
	"difyrelay/internal/bus"
	"difyrelay/internal/domain"
	"difyrelay/internal/media"
)

// DispatcherConfig holds the collaborators of one Dispatcher. Zero-valued
// texts, prompts and phrases fall back to their defaults.
type DispatcherConfig struct {
	Bus                 domain.MessageBus
	Backend             domain.Backend
	Speech              domain.Speech
	Fetcher             domain.Fetcher
	Transcoder          audio.Transcoder
	Formats             *media.FormatTable
	Events              *bus.EventBus // optional
	Messages            Messages
	Prompts             Prompts
	AudioRequestPhrases []string
	MaxBlockLength      int
	Logger              *slog.Logger
}

// Dispatcher runs one inbound message through classification, the backend
// call and reply delivery. It holds no per-message state.
type Dispatcher struct {
	bus        domain.MessageBus
	backend    domain.Backend
	speech     domain.Speech
	fetcher    domain.Fetcher
	transcoder audio.Transcoder
	formats    *media.FormatTable
	events     *bus.EventBus
	messages   Messages
	prompts    Prompts
	phrases    []string
	maxBlock   int
	logger     *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Formats == nil {
		cfg.Formats = media.NewFormatTable(media.DefaultFormats(), cfg.Logger)
	}
	if cfg.Messages.Failures == nil {
		cfg.Messages = DefaultMessages()
	}
	if cfg.Prompts == (Prompts{}) {
		cfg.Prompts = DefaultPrompts()
	}
	if len(cfg.AudioRequestPhrases) == 0 {
		cfg.AudioRequestPhrases = DefaultAudioRequestPhrases
	}
	if cfg.MaxBlockLength <= 0 {
		cfg.MaxBlockLength = media.DefaultMaxBlockLength
	}
	return &Dispatcher{
		bus:        cfg.Bus,
		backend:    cfg.Backend,
		speech:     cfg.Speech,
		fetcher:    cfg.Fetcher,
		transcoder: cfg.Transcoder,
		formats:    cfg.Formats,
		events:     cfg.Events,
		messages:   cfg.Messages,
		prompts:    cfg.Prompts,
		phrases:    cfg.AudioRequestPhrases,
		maxBlock:   cfg.MaxBlockLength,
		logger:     cfg.Logger,
	}
}

// pass is the state of a single dispatch.
type pass struct {
	msg      domain.InboundMessage
	log      *slog.Logger
	category string
	outcome  string
}

// Dispatch handles msg to completion. Every failure, including a panic, ends
// here; at most the configured apology text is sent back.
func (d *Dispatcher) Dispatch(ctx context.Context, msg domain.InboundMessage) {
	start := time.Now()
	p := &pass{
		msg: msg,
		log: d.logger.With("trace", uuid.NewString(), "channel", msg.Channel, "chat", msg.ChatID),
	}
	route := Classify(msg)

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("dispatch panic", "panic", r)
			p.outcome = "panic"
			if route != RouteIgnore {
				d.sendText(ctx, p, d.messages.Generic)
			}
		}
		d.events.Emit(bus.Event{
			Type:     bus.EventDispatchDone,
			Channel:  msg.Channel,
			Category: p.category,
			Outcome:  p.outcome,
			Duration: time.Since(start),
		})
		p.log.Debug("dispatch finished", "route", route, "category", p.category, "outcome", p.outcome, "elapsed", time.Since(start))
	}()

	d.events.Emit(bus.Event{Type: bus.EventMessageReceived, Channel: msg.Channel, Outcome: route.String()})

	switch route {
	case RouteIgnore:
		p.outcome = "ignored"
		p.log.Debug("message ignored", "scope", msg.Scope, "type", msg.Type)
		d.events.Emit(bus.Event{Type: bus.EventMessageIgnored, Channel: msg.Channel, Outcome: msg.Type})
	case RouteText:
		d.handleText(ctx, p)
	case RouteMedia:
		d.handleMedia(ctx, p)
	case RouteUnsupported:
		p.outcome = "unsupported"
		p.log.Info("unsupported message type", "type", msg.Type)
		d.sendText(ctx, p, d.messages.Unsupported)
	}
}

func (d *Dispatcher) handleText(ctx context.Context, p *pass) {
	p.category = CategoryText
	wantsAudio := WantsAudioReply(p.msg.Body, d.phrases)
	p.log.Info("text message", "len", len(p.msg.Body), "audio_reply", wantsAudio)

	resp, err := d.chat(ctx, p, domain.ChatRequest{Query: p.msg.Body, User: p.msg.SenderID})
	if err != nil {
		d.fail(ctx, p, err)
		return
	}
	d.deliverAnswer(ctx, p, resp.Answer, wantsAudio)
}

// chat wraps Backend.Chat with timing and an event.
func (d *Dispatcher) chat(ctx context.Context, p *pass, req domain.ChatRequest) (*domain.ChatResponse, error) {
	start := time.Now()
	resp, err := d.backend.Chat(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	d.events.Emit(bus.Event{
		Type:     bus.EventBackendCall,
		Channel:  p.msg.Channel,
		Category: p.category,
		Outcome:  outcome,
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	return resp, nil
}

// policyError is satisfied by backend errors that carry rejection markers.
type policyError interface {
	error
	IsContentPolicy() bool
	IsEmptyQuery() bool
}

// fail logs err and sends the category's failure text, if it has one.
func (d *Dispatcher) fail(ctx context.Context, p *pass, err error) {
	var contentPolicy, emptyQuery bool
	var pe policyError
	if errors.As(err, &pe) {
		contentPolicy, emptyQuery = pe.IsContentPolicy(), pe.IsEmptyQuery()
	}
	switch {
	case contentPolicy:
		p.outcome = "content_policy"
	case emptyQuery:
		p.outcome = "empty_query"
	default:
		p.outcome = "error"
	}

	text := d.messages.failureFor(p.category, contentPolicy, emptyQuery)
	p.log.Error("message handling failed", "category", p.category, "error", err, "reply", text != "")
	d.sendText(ctx, p, text)
}

func (d *Dispatcher) sendText(ctx context.Context, p *pass, text string) {
	if text == "" {
		return
	}
	d.send(ctx, p, domain.OutboundMessage{Channel: p.msg.Channel, ChatID: p.msg.ChatID, Text: text}, "text")
}

func (d *Dispatcher) sendMedia(ctx context.Context, p *pass, payload *domain.MediaPayload, voice bool) error {
	kind := "media"
	if voice {
		kind = "voice"
	}
	return d.send(ctx, p, domain.OutboundMessage{
		Channel: p.msg.Channel,
		ChatID:  p.msg.ChatID,
		Media:   payload,
		Voice:   voice,
	}, kind)
}

func (d *Dispatcher) send(ctx context.Context, p *pass, out domain.OutboundMessage, kind string) error {
	if err := d.bus.SendOutbound(ctx, out); err != nil {
		p.log.Error("send reply failed", "kind", kind, "error", err)
		d.events.Emit(bus.Event{Type: bus.EventReplyFailed, Channel: out.Channel, Category: p.category, Outcome: kind, Err: err})
		return err
	}
	if p.outcome == "" {
		p.outcome = "replied"
	}
	d.events.Emit(bus.Event{Type: bus.EventReplySent, Channel: out.Channel, Category: p.category, Outcome: kind})
	return nil
}
