package domain

import (
	"context"
	"errors"
)

// ErrUnsupported marks content the relay deliberately does not act on.
var ErrUnsupported = errors.New("unsupported content")

// ErrNoAudioURL is returned by Speech when synthesis succeeded but the
// response carried no downloadable audio.
var ErrNoAudioURL = errors.New("speech response contains no audio url")

// FileRef attaches a previously uploaded file to a chat request.
type FileRef struct {
	Type           string `json:"type"` // image | video | document | audio
	TransferMethod string `json:"transfer_method"`
	UploadFileID   string `json:"upload_file_id"`
}

type ChatRequest struct {
	Query  string
	User   string
	Inputs map[string]any
	Files  []FileRef
}

type ChatResponse struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
}

// Backend is the completion service that answers queries.
type Backend interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	UploadFile(ctx context.Context, user string, file MediaPayload) (string, error)
	AudioToText(ctx context.Context, user string, audio MediaPayload) (string, error)
}

// Speech synthesizes text and returns a downloadable audio URL.
type Speech interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Fetcher downloads a remote resource into memory.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
