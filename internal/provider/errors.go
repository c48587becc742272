package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Error codes and message markers the completion backend uses.
const (
	codeInvalidParam      = "invalid_param"
	markerContentPolicy   = "content_policy_violation"
	markerQueryIsRequired = "query is required"
)

// BackendError is a non-success HTTP response from a remote API.
type BackendError struct {
	Status  int
	Code    string
	Message string
	Body    string
}

func (e *BackendError) Error() string {
	if e.Code != "" || e.Message != "" {
		return fmt.Sprintf("backend error (status %d): %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error (status %d): %s", e.Status, e.Body)
}

// IsContentPolicy reports a request rejected by the backend's content policy.
func (e *BackendError) IsContentPolicy() bool {
	return e.Code == codeInvalidParam && strings.Contains(e.Message, markerContentPolicy)
}

// IsEmptyQuery reports a request rejected because the query was empty.
func (e *BackendError) IsEmptyQuery() bool {
	return e.Code == codeInvalidParam && strings.Contains(e.Message, markerQueryIsRequired)
}

// newBackendError decodes the standard {code, message, status} error body,
// keeping the raw body when it is not JSON.
func newBackendError(status int, body []byte) *BackendError {
	be := &BackendError{Status: status, Body: strings.TrimSpace(string(body))}
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		be.Code = payload.Code
		be.Message = payload.Message
	}
	return be
}

// DownloadError is a failed remote resource fetch: either a non-200 status
// or a transport-level failure.
type DownloadError struct {
	URL    string
	Status int
	Err    error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("download %s: status code %d", e.URL, e.Status)
}

func (e *DownloadError) Unwrap() error { return e.Err }
