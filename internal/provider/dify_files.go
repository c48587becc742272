package provider

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"difyrelay/internal/domain"
)

// UploadFile stores file on the backend and returns its upload id, which is
// later attached to a chat request as a local_file reference.
func (d *Dify) UploadFile(ctx context.Context, user string, file domain.MediaPayload) (string, error) {
	body, contentType, err := multipartBody(user, file, "upload")
	if err != nil {
		return "", err
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := d.do(ctx, "/files/upload", contentType, body.Bytes(), &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("dify upload returned no file id")
	}

	d.logger.Debug("file uploaded", "user", user, "mime", file.MIMEType, "bytes", len(file.Data), "id", result.ID)
	return result.ID, nil
}

// AudioToText transcribes a WAV recording.
func (d *Dify) AudioToText(ctx context.Context, user string, audio domain.MediaPayload) (string, error) {
	if audio.MIMEType == "" {
		audio.MIMEType = "audio/wav"
	}
	if audio.Filename == "" {
		audio.Filename = "audio.wav"
	}
	body, contentType, err := multipartBody(user, audio, "audio")
	if err != nil {
		return "", err
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := d.do(ctx, "/audio-to-text", contentType, body.Bytes(), &result); err != nil {
		return "", err
	}

	d.logger.Info("transcription complete", "user", user, "text_len", len(result.Text))
	return result.Text, nil
}

// multipartBody builds a form with a "file" part carrying the payload's own
// content type and a "user" field.
func multipartBody(user string, file domain.MediaPayload, fallbackName string) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	filename := file.Filename
	if filename == "" {
		filename = fallbackName
	}
	mimeType := file.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	h.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", fmt.Errorf("copy file data: %w", err)
	}
	if err := writer.WriteField("user", user); err != nil {
		return nil, "", fmt.Errorf("write user field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
