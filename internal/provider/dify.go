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

// DifyConfig configures the Dify completion backend client.
type DifyConfig struct {
	APIBase      string // e.g., "https://api.dify.ai/v1"
	APIKey       string
	ResponseMode string // only "blocking" is supported
	Retry        RetryPolicy
	Client       *http.Client
	Logger       *slog.Logger
}

// Dify talks to a Dify application's chat, file upload and speech-to-text
// endpoints. It is safe for concurrent use.
type Dify struct {
	apiBase      string
	apiKey       string
	responseMode string
	retry        RetryPolicy
	client       *http.Client
	logger       *slog.Logger
}

var _ domain.Backend = (*Dify)(nil)

func NewDify(cfg DifyConfig) *Dify {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.dify.ai/v1"
	}
	if cfg.ResponseMode == "" {
		cfg.ResponseMode = "blocking"
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dify{
		apiBase:      strings.TrimRight(cfg.APIBase, "/"),
		apiKey:       cfg.APIKey,
		responseMode: cfg.ResponseMode,
		retry:        cfg.Retry,
		client:       cfg.Client,
		logger:       cfg.Logger,
	}
}

type difyChatRequest struct {
	Query        string           `json:"query"`
	Inputs       map[string]any   `json:"inputs"`
	User         string           `json:"user"`
	ResponseMode string           `json:"response_mode"`
	Files        []domain.FileRef `json:"files,omitempty"`
}

// Chat sends one blocking completion request. A non-200 reply is returned
// as a *BackendError carrying the backend's code and message.
func (d *Dify) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	inputs := req.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}
	body, err := json.Marshal(difyChatRequest{
		Query:        req.Query,
		Inputs:       inputs,
		User:         req.User,
		ResponseMode: d.responseMode,
		Files:        req.Files,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	var result domain.ChatResponse
	if err := d.do(ctx, "/chat-messages", "application/json", body, &result); err != nil {
		return nil, err
	}

	d.logger.Debug("chat completed",
		"user", req.User,
		"files", len(req.Files),
		"answer_len", len(result.Answer),
	)
	return &result, nil
}

// do POSTs body to path and decodes a 200 response into out.
func (d *Dify) do(ctx context.Context, path, contentType string, body []byte, out any) error {
	buildReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiBase+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
		return req, nil
	}

	resp, err := doWithRetry(ctx, d.client, d.retry, buildReq, d.logger)
	if err != nil {
		return fmt.Errorf("dify %s request: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read dify %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		be := newBackendError(resp.StatusCode, respBody)
		d.logger.Warn("dify request rejected", "path", path, "status", resp.StatusCode, "code", be.Code)
		return be
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode dify %s response: %w", path, err)
	}
	return nil
}
