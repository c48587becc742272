package metrics

import (
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"difyrelay/internal/bus"
)

func TestObserveFromEventBus(t *testing.T) {
	m := New()
	eb := bus.NewEventBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.Subscribe(eb)

	eb.Emit(bus.Event{Type: bus.EventMessageReceived, Channel: "whatsapp", Outcome: "text"})
	eb.Emit(bus.Event{Type: bus.EventMessageIgnored, Channel: "whatsapp"})
	eb.Emit(bus.Event{Type: bus.EventBackendCall, Category: "text", Outcome: "ok", Duration: 200 * time.Millisecond})
	eb.Emit(bus.Event{Type: bus.EventReplySent, Channel: "whatsapp", Outcome: "voice"})
	eb.Emit(bus.Event{Type: bus.EventSpeechSegment})
	eb.Emit(bus.Event{Type: bus.EventSpeechSegment, Err: errors.New("x")})
	eb.Emit(bus.Event{Type: bus.EventDispatchDone, Category: "text", Outcome: "replied", Duration: time.Second})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesReceived.WithLabelValues("whatsapp", "text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesIgnored.WithLabelValues("whatsapp", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendCalls.WithLabelValues("text", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RepliesSent.WithLabelValues("whatsapp", "voice")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpeechSegments.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpeechSegments.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("text", "replied")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RepliesFailed.WithLabelValues("telegram", "text").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `difyrelay_replies_failed_total{channel="telegram",kind="text"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}

func TestNewIsIndependent(t *testing.T) {
	// Separate registries: constructing twice must not panic on duplicates.
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
