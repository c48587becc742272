package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"difyrelay/internal/domain"
)

const (
	DefaultLovoSpeaker = "63b409bb241a82001d51c710"
	DefaultLovoSpeed   = 1.25
)

// LovoConfig configures the Genny/LOVO synchronous text-to-speech client.
type LovoConfig struct {
	APIBase string // e.g., "https://api.genny.lovo.ai/api/v1"
	APIKey  string
	Speaker string
	Speed   float64
	Client  *http.Client
	Logger  *slog.Logger
}

// Lovo synthesizes one text block per call and returns the URL of the
// generated audio.
type Lovo struct {
	apiBase string
	apiKey  string
	speaker string
	speed   float64
	client  *http.Client
	logger  *slog.Logger
}

var _ domain.Speech = (*Lovo)(nil)

func NewLovo(cfg LovoConfig) *Lovo {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.genny.lovo.ai/api/v1"
	}
	if cfg.Speaker == "" {
		cfg.Speaker = DefaultLovoSpeaker
	}
	if cfg.Speed <= 0 {
		cfg.Speed = DefaultLovoSpeed
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Lovo{
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		apiKey:  cfg.APIKey,
		speaker: cfg.Speaker,
		speed:   cfg.Speed,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

type lovoRequest struct {
	Text    string  `json:"text"`
	Speaker string  `json:"speaker"`
	Speed   float64 `json:"speed"`
}

type lovoResponse struct {
	Data []struct {
		URLs []string `json:"urls"`
	} `json:"data"`
}

// Synthesize returns the first audio URL in the response, or
// domain.ErrNoAudioURL.
func (l *Lovo) Synthesize(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(lovoRequest{Text: text, Speaker: l.speaker, Speed: l.speed})
	if err != nil {
		return "", fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.apiBase+"/tts/sync", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", l.apiKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("tts API request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read tts response: %w", err)
	}
	// The sync endpoint answers 201 when the job completes inline.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", newBackendError(resp.StatusCode, respBody)
	}

	var result lovoResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decode tts response: %w", err)
	}
	if len(result.Data) == 0 || len(result.Data[0].URLs) == 0 || result.Data[0].URLs[0] == "" {
		return "", domain.ErrNoAudioURL
	}

	url := result.Data[0].URLs[0]
	l.logger.Debug("tts synthesized", "text_len", len([]rune(text)), "url", url)
	return url, nil
}
