package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"difyrelay/internal/domain"
)

func newTestDify(t *testing.T, h http.HandlerFunc) *Dify {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewDify(DifyConfig{APIBase: srv.URL + "/", APIKey: "secret", Client: srv.Client(), Logger: testLogger()})
}

func TestDifyChatRequestShape(t *testing.T) {
	var got map[string]any
	d := newTestDify(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat-messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"answer":"hi there","conversation_id":"c1","message_id":"m1"}`))
	})

	resp, err := d.Chat(context.Background(), domain.ChatRequest{
		Query: "hello",
		User:  "5511999",
		Files: []domain.FileRef{{Type: "image", TransferMethod: "local_file", UploadFileID: "f1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Answer)
	assert.Equal(t, "c1", resp.ConversationID)

	assert.Equal(t, "hello", got["query"])
	assert.Equal(t, "5511999", got["user"])
	assert.Equal(t, "blocking", got["response_mode"])
	assert.Equal(t, map[string]any{}, got["inputs"])
	files := got["files"].([]any)
	require.Len(t, files, 1)
	assert.Equal(t, map[string]any{"type": "image", "transfer_method": "local_file", "upload_file_id": "f1"}, files[0])
}

func TestDifyChatOmitsEmptyFiles(t *testing.T) {
	var got map[string]any
	d := newTestDify(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"answer":"ok"}`))
	})
	_, err := d.Chat(context.Background(), domain.ChatRequest{Query: "q", User: "u"})
	require.NoError(t, err)
	_, present := got["files"]
	assert.False(t, present)
}

func TestDifyChatBackendErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		contentPolicy bool
		emptyQuery    bool
	}{
		{"content policy", 400, `{"code":"invalid_param","message":"Run failed: content_policy_violation","status":400}`, true, false},
		{"empty query", 400, `{"code":"invalid_param","message":"query is required","status":400}`, false, true},
		{"other code", 400, `{"code":"app_unavailable","message":"query is required"}`, false, false},
		{"plain text", 502, `bad gateway`, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDify(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := d.Chat(context.Background(), domain.ChatRequest{Query: "q", User: "u"})
			var be *BackendError
			require.True(t, errors.As(err, &be), "want *BackendError, got %v", err)
			assert.Equal(t, tt.status, be.Status)
			assert.Equal(t, tt.contentPolicy, be.IsContentPolicy())
			assert.Equal(t, tt.emptyQuery, be.IsEmptyQuery())
		})
	}
}

func TestDifyTransportErrorIsNotBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	d := NewDify(DifyConfig{APIBase: url, APIKey: "k", Logger: testLogger()})
	_, err := d.Chat(context.Background(), domain.ChatRequest{Query: "q", User: "u"})
	require.Error(t, err)
	var be *BackendError
	assert.False(t, errors.As(err, &be))
}

func TestDifyRetriesServerErrors(t *testing.T) {
	calls := 0
	d := newTestDify(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"query":"q"`)
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"answer":"finally"}`))
	})
	d.retry = RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}

	resp, err := d.Chat(context.Background(), domain.ChatRequest{Query: "q", User: "u"})
	require.NoError(t, err)
	assert.Equal(t, "finally", resp.Answer)
	assert.Equal(t, 3, calls)
}

func TestDifyNoRetryByDefault(t *testing.T) {
	calls := 0
	d := newTestDify(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := d.Chat(context.Background(), domain.ChatRequest{Query: "q", User: "u"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDifyUploadFile(t *testing.T) {
	d := newTestDify(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "5511999", r.FormValue("user"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "PNGDATA", string(data))
		assert.Equal(t, "photo.png", hdr.Filename)
		assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"id":"upload-1","name":"photo.png"}`))
	})

	id, err := d.UploadFile(context.Background(), "5511999", domain.MediaPayload{
		Data: []byte("PNGDATA"), MIMEType: "image/png", Filename: "photo.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "upload-1", id)
}

func TestDifyUploadFileMissingID(t *testing.T) {
	d := newTestDify(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	_, err := d.UploadFile(context.Background(), "u", domain.MediaPayload{Data: []byte("x")})
	require.Error(t, err)
}

func TestDifyAudioToText(t *testing.T) {
	d := newTestDify(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio-to-text", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "audio.wav", hdr.Filename)
		assert.Equal(t, "audio/wav", hdr.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"text":"send me the report"}`))
	})

	text, err := d.AudioToText(context.Background(), "u", domain.MediaPayload{Data: []byte("RIFF")})
	require.NoError(t, err)
	assert.Equal(t, "send me the report", text)
}
