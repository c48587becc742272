package channel

import (
	"context"
	"errors"
	"strings"
	"testing"

	"difyrelay/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestTelegramInbound_Text(t *testing.T) {
	msg := telegramInbound(&tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: 42},
		Chat:      &tgbotapi.Chat{ID: 100, Type: "private"},
		Date:      1700000000,
		Text:      "what is the weather today",
	})

	if msg.Kind != domain.KindText || msg.Type != "text" || msg.Body != "what is the weather today" {
		t.Errorf("unexpected text mapping: %+v", msg)
	}
	if msg.ID != "100:7" || msg.ChatID != "100" || msg.SenderID != "42" {
		t.Errorf("unexpected ids: %+v", msg)
	}
	if msg.Scope != domain.ScopeDirect || msg.Timestamp.Unix() != 1700000000 {
		t.Errorf("unexpected scope or timestamp: %+v", msg)
	}
}

func TestTelegramInbound_Media(t *testing.T) {
	tests := []struct {
		name     string
		msg      tgbotapi.Message
		wantType string
		wantRef  string
		wantMIME string
	}{
		{
			name:     "photo picks largest size",
			msg:      tgbotapi.Message{Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}}, Caption: "look"},
			wantType: "image", wantRef: "large", wantMIME: "image/jpeg",
		},
		{
			name:     "voice defaults to ogg",
			msg:      tgbotapi.Message{Voice: &tgbotapi.Voice{FileID: "v1"}},
			wantType: "voice", wantRef: "v1", wantMIME: "audio/ogg",
		},
		{
			name:     "audio keeps declared mime",
			msg:      tgbotapi.Message{Audio: &tgbotapi.Audio{FileID: "a1", MimeType: "audio/mpeg"}},
			wantType: "audio", wantRef: "a1", wantMIME: "audio/mpeg",
		},
		{
			name:     "video",
			msg:      tgbotapi.Message{Video: &tgbotapi.Video{FileID: "vid", MimeType: "video/mp4"}},
			wantType: "video", wantRef: "vid", wantMIME: "video/mp4",
		},
		{
			name:     "document",
			msg:      tgbotapi.Message{Document: &tgbotapi.Document{FileID: "doc", MimeType: "application/pdf"}},
			wantType: "document", wantRef: "doc", wantMIME: "application/pdf",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.msg
			m.Chat = &tgbotapi.Chat{ID: 1, Type: "private"}
			got := telegramInbound(&m)
			if got.Kind != domain.KindMedia || !got.HasMedia {
				t.Fatalf("expected media message, got %+v", got)
			}
			if got.Type != tt.wantType || got.MediaRef != tt.wantRef || got.MediaMIME != tt.wantMIME {
				t.Errorf("got type=%q ref=%q mime=%q", got.Type, got.MediaRef, got.MediaMIME)
			}
		})
	}
}

func TestTelegramInbound_Unsupported(t *testing.T) {
	msg := telegramInbound(&tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 1, Type: "private"},
		Location: &tgbotapi.Location{Latitude: 1, Longitude: 2},
	})
	if msg.Kind != domain.KindUnsupported || msg.HasMedia {
		t.Errorf("location should be unsupported: %+v", msg)
	}
}

func TestTelegramScope(t *testing.T) {
	tests := map[string]domain.Scope{
		"private":    domain.ScopeDirect,
		"group":      domain.ScopeGroup,
		"supergroup": domain.ScopeGroup,
		"channel":    domain.ScopeBroadcast,
	}
	for typ, want := range tests {
		if got := telegramScope(&tgbotapi.Chat{Type: typ}); got != want {
			t.Errorf("telegramScope(%q) = %v, want %v", typ, got, want)
		}
	}
}

func TestTelegramMediaConfig(t *testing.T) {
	media := func(mime string) *domain.MediaPayload {
		return &domain.MediaPayload{Data: []byte("x"), MIMEType: mime, Filename: "f"}
	}

	if _, ok := telegramMediaConfig(1, domain.OutboundMessage{Media: media("image/png")}).(tgbotapi.PhotoConfig); !ok {
		t.Error("image should be sent as photo")
	}
	if _, ok := telegramMediaConfig(1, domain.OutboundMessage{Media: media("audio/ogg"), Voice: true}).(tgbotapi.VoiceConfig); !ok {
		t.Error("voice reply should be sent as voice")
	}
	if _, ok := telegramMediaConfig(1, domain.OutboundMessage{Media: media("audio/mpeg")}).(tgbotapi.AudioConfig); !ok {
		t.Error("audio file should be sent as audio")
	}
	if _, ok := telegramMediaConfig(1, domain.OutboundMessage{Media: media("application/pdf")}).(tgbotapi.DocumentConfig); !ok {
		t.Error("pdf should be sent as document")
	}
}

func TestSplitText(t *testing.T) {
	if chunks := splitText("short", 100); len(chunks) != 1 || chunks[0] != "short" {
		t.Errorf("unexpected chunks %q", chunks)
	}

	long := strings.Repeat("word ", 100)
	chunks := splitText(long, 50)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 50 {
			t.Errorf("chunk %d too long: %d", i, len(c))
		}
	}
	if strings.Join(chunks, "") != long {
		t.Error("chunks should reassemble to the input")
	}

	// Multi-byte runes are never cut in half.
	for _, c := range splitText(strings.Repeat("é", 30), 7) {
		if !strings.HasPrefix(c, "é") || len(c)%2 != 0 {
			t.Errorf("chunk %q splits a rune", c)
		}
	}
}

func TestTelegramDownloadMedia_NoMedia(t *testing.T) {
	tg := NewTelegram(TelegramConfig{Logger: testLogger()})
	_, err := tg.DownloadMedia(context.Background(), domain.InboundMessage{ID: "1"})
	if !errors.Is(err, domain.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestTelegramSend_NotStarted(t *testing.T) {
	tg := NewTelegram(TelegramConfig{Logger: testLogger()})
	if err := tg.Send(context.Background(), domain.OutboundMessage{ChatID: "1", Text: "hi"}); err == nil {
		t.Error("expected error before Start")
	}
}
