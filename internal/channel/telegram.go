package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"difyrelay/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	TelegramName = "telegram"

	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
	telegramPollTimeout    = 30
)

// Telegram implements domain.Transport for a Telegram bot using long polling.
type Telegram struct {
	token       string
	pollTimeout int
	fetcher     domain.Fetcher

	bot    *tgbotapi.BotAPI
	bus    domain.MessageBus
	logger *slog.Logger
}

var _ domain.Transport = (*Telegram)(nil)

type TelegramConfig struct {
	Token              string
	PollTimeoutSeconds int
	Fetcher            domain.Fetcher // downloads files from the bot file endpoint
	Logger             *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.PollTimeoutSeconds <= 0 {
		cfg.PollTimeoutSeconds = telegramPollTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:       cfg.Token,
		pollTimeout: cfg.PollTimeoutSeconds,
		fetcher:     cfg.Fetcher,
		logger:      cfg.Logger.With("channel", TelegramName),
	}
}

func (t *Telegram) Name() string { return TelegramName }

// Start connects to Telegram and polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.pollTimeout
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(update)
		}
	}
}

// Stop is a no-op: polling ends when Start's context is cancelled, and
// StopReceivingUpdates panics if called twice.
func (t *Telegram) Stop() error { return nil }

func (t *Telegram) handleUpdate(update tgbotapi.Update) {
	m := update.Message
	if m == nil {
		m = update.ChannelPost
	}
	if m == nil || m.Chat == nil {
		return
	}

	msg := telegramInbound(m)
	t.logger.Info("telegram message received",
		"id", msg.ID, "chat_id", msg.ChatID, "type", msg.Type)
	t.bus.Publish(msg)
}

// telegramInbound maps a Telegram message onto the transport-neutral shape.
func telegramInbound(m *tgbotapi.Message) domain.InboundMessage {
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	msg := domain.InboundMessage{
		Channel:   TelegramName,
		ID:        chatID + ":" + strconv.Itoa(m.MessageID),
		ChatID:    chatID,
		SenderID:  chatID,
		Scope:     telegramScope(m.Chat),
		Kind:      domain.KindUnsupported,
		Type:      "unsupported",
		Body:      m.Caption,
		Timestamp: time.Unix(int64(m.Date), 0),
	}
	if m.From != nil {
		msg.SenderID = strconv.FormatInt(m.From.ID, 10)
	}

	media := func(typ, fileID, mimeType string) {
		msg.Type = typ
		msg.Kind = domain.KindMedia
		msg.HasMedia = true
		msg.MediaRef = fileID
		msg.MediaMIME = mimeType
	}

	switch {
	case m.Text != "":
		msg.Type = "text"
		msg.Kind = domain.KindText
		msg.Body = m.Text
	case len(m.Photo) > 0:
		// Sizes are ordered smallest first.
		media("image", m.Photo[len(m.Photo)-1].FileID, "image/jpeg")
	case m.Voice != nil:
		media("voice", m.Voice.FileID, orDefault(m.Voice.MimeType, "audio/ogg"))
	case m.Audio != nil:
		media("audio", m.Audio.FileID, m.Audio.MimeType)
	case m.Video != nil:
		media("video", m.Video.FileID, m.Video.MimeType)
	case m.Document != nil:
		media("document", m.Document.FileID, m.Document.MimeType)
		msg.MediaName = m.Document.FileName
	case m.Sticker != nil:
		media("sticker", m.Sticker.FileID, "image/webp")
	}
	return msg
}

func telegramScope(c *tgbotapi.Chat) domain.Scope {
	switch {
	case c.IsGroup(), c.IsSuperGroup():
		return domain.ScopeGroup
	case c.IsChannel():
		return domain.ScopeBroadcast
	default:
		return domain.ScopeDirect
	}
}

// DownloadMedia resolves the file id to a direct URL and fetches it.
func (t *Telegram) DownloadMedia(ctx context.Context, msg domain.InboundMessage) (*domain.MediaPayload, error) {
	if !msg.HasMedia || msg.MediaRef == "" {
		return nil, fmt.Errorf("message %s: %w", msg.ID, domain.ErrUnsupported)
	}
	if t.bot == nil || t.fetcher == nil {
		return nil, errors.New("telegram channel not started")
	}

	url, err := t.bot.GetFileDirectURL(msg.MediaRef)
	if err != nil {
		return nil, fmt.Errorf("resolve file %s: %w", msg.MediaRef, err)
	}
	data, err := t.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", msg.MediaRef, err)
	}
	return &domain.MediaPayload{Data: data, MIMEType: msg.MediaMIME, Filename: msg.MediaName}, nil
}

// Send delivers a reply. Long texts are split into several messages.
func (t *Telegram) Send(ctx context.Context, msg domain.OutboundMessage) error {
	if t.bot == nil {
		return errors.New("telegram channel not started")
	}
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}

	if msg.Media != nil {
		return t.sendWithRetry(ctx, telegramMediaConfig(chatID, msg))
	}
	for _, chunk := range splitText(msg.Text, telegramMaxMsgLen) {
		if err := t.sendWithRetry(ctx, tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return err
		}
	}
	return nil
}

func telegramMediaConfig(chatID int64, msg domain.OutboundMessage) tgbotapi.Chattable {
	name := msg.Media.Filename
	if name == "" {
		name = "file"
	}
	file := tgbotapi.FileBytes{Name: name, Bytes: msg.Media.Data}

	switch mediaMessageType(msg.Media.MIMEType, msg.Voice) {
	case "image":
		return tgbotapi.NewPhoto(chatID, file)
	case "audio":
		if msg.Voice {
			return tgbotapi.NewVoice(chatID, file)
		}
		return tgbotapi.NewAudio(chatID, file)
	case "video":
		return tgbotapi.NewVideo(chatID, file)
	default:
		return tgbotapi.NewDocument(chatID, file)
	}
}

// sendWithRetry honors Telegram's retry_after on rate limiting.
func (t *Telegram) sendWithRetry(ctx context.Context, c tgbotapi.Chattable) error {
	for attempt := 0; ; attempt++ {
		_, err := t.bot.Send(c)
		if err == nil {
			return nil
		}

		var apiErr *tgbotapi.Error
		if attempt >= telegramMaxSendRetries || !errors.As(err, &apiErr) || apiErr.RetryAfter <= 0 {
			return fmt.Errorf("telegram send: %w", err)
		}

		wait := time.Duration(apiErr.RetryAfter) * time.Second
		t.logger.Warn("telegram rate limited, backing off", "retry_after", wait, "attempt", attempt+1)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// splitText cuts text into chunks of at most maxLen bytes, preferring
// newline boundaries in the second half of a chunk.
func splitText(text string, maxLen int) []string {
	var chunks []string
	for len(text) > maxLen {
		cutAt := strings.LastIndex(text[:maxLen], "\n")
		if cutAt < maxLen/2 {
			cutAt = maxLen
			for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
				cutAt--
			}
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	if text != "" || len(chunks) == 0 {
		chunks = append(chunks, text)
	}
	return chunks
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
