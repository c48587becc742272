package provider

import (
	"context"
	"io"
	"log/slog"
	"net/http"
)

// Fetcher downloads remote resources referenced in backend answers and
// speech responses.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

func NewFetcher(client *http.Client, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = SharedHTTPClient(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, logger: logger}
}

// Fetch GETs url and returns the whole body. Only status 200 counts as
// success; anything else, including other 2xx codes, is a *DownloadError.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &DownloadError{URL: url, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DownloadError{URL: url, Status: resp.StatusCode, Err: err}
	}

	f.logger.Debug("resource downloaded", "url", url, "bytes", len(data))
	return data, nil
}
