package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a pipeline observation emitted by the dispatcher. Metrics and
// diagnostics subscribe to these instead of being called directly.
type Event struct {
	Type     string // one of the Event* constants
	Channel  string
	Category string // text | image | audio | video | document, when known
	Outcome  string // free-form result tag, e.g. "sent", "content_policy"
	Duration time.Duration
	Err      error
	Time     time.Time
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// EventBus is a synchronous topic-based pub/sub. It keeps a bounded history
// of recent events.
type EventBus struct {
	handlers   map[string][]namedHandler
	mu         sync.RWMutex
	logger     *slog.Logger
	history    []Event
	maxHistory int
}

type namedHandler struct {
	ID      string
	Handler EventHandler
}

func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		handlers:   make(map[string][]namedHandler),
		logger:     logger,
		maxHistory: 256,
	}
}

// On registers a handler for the given event type.
// Use "*" to listen to all events. Returns the handler ID for unsubscription.
func (eb *EventBus) On(eventType string, handler EventHandler) string {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := uuid.NewString()
	eb.handlers[eventType] = append(eb.handlers[eventType], namedHandler{ID: id, Handler: handler})
	return id
}

func (eb *EventBus) Off(eventType, handlerID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	handlers := eb.handlers[eventType]
	for i, h := range handlers {
		if h.ID == handlerID {
			eb.handlers[eventType] = append(handlers[:i:i], handlers[i+1:]...)
			return
		}
	}
}

// Emit calls every matching handler synchronously, in registration order.
// A panicking handler is logged and does not affect the others. A nil
// EventBus drops the event.
func (eb *EventBus) Emit(event Event) {
	if eb == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	eb.mu.Lock()
	if len(eb.history) >= eb.maxHistory {
		eb.history = eb.history[1:]
	}
	eb.history = append(eb.history, event)
	handlers := make([]namedHandler, 0, len(eb.handlers[event.Type])+len(eb.handlers["*"]))
	handlers = append(handlers, eb.handlers[event.Type]...)
	handlers = append(handlers, eb.handlers["*"]...)
	eb.mu.Unlock()

	for _, h := range handlers {
		func(nh namedHandler) {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "event", event.Type, "handler", nh.ID, "panic", r)
				}
			}()
			nh.Handler(event)
		}(h)
	}
}

// Recent returns up to n of the most recent events of the given type, oldest
// first. Use "*" for all types.
func (eb *EventBus) Recent(eventType string, n int) []Event {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	var result []Event
	for i := len(eb.history) - 1; i >= 0 && len(result) < n; i-- {
		if e := eb.history[i]; eventType == "*" || e.Type == eventType {
			result = append(result, e)
		}
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

// Well-known event types.
const (
	EventMessageReceived = "message.received"
	EventMessageIgnored  = "message.ignored"
	EventReplySent       = "reply.sent"
	EventReplyFailed     = "reply.failed"
	EventBackendCall     = "backend.call"
	EventSpeechSegment   = "speech.segment"
	EventTranscode       = "audio.transcode"
	EventDispatchDone    = "dispatch.done"
)
