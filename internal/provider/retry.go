package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"
)

// RetryPolicy controls how many extra attempts a transient failure gets.
// The zero value sends each request exactly once.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	d := time.Duration(attempt*attempt) * base
	return d + time.Duration(rand.Int64N(int64(d/2+1)))
}

// doWithRetry executes an HTTP request, retrying network failures, 5xx and
// 429 responses with quadratic backoff plus jitter. When retries run out the
// last response is handed back unread so the caller can classify it.
func doWithRetry(ctx context.Context, client *http.Client, policy RetryPolicy, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			wait := policy.backoff(attempt)
			logger.Warn("retrying request", "attempt", attempt+1, "backoff", wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		last := attempt >= policy.MaxRetries
		resp, err := client.Do(req)
		if err != nil {
			if last || ctx.Err() != nil {
				return nil, err
			}
			logger.Warn("request failed, will retry", "error", err)
			continue
		}

		if !last && (resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests) {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			logger.Warn("server error, will retry", "status", resp.StatusCode)
			continue
		}
		return resp, nil
	}
}
