package domain

import "time"

// Scope describes where a conversation lives on the transport.
type Scope int

const (
	ScopeDirect Scope = iota
	ScopeGroup
	ScopeBroadcast
)

func (s Scope) String() string {
	switch s {
	case ScopeGroup:
		return "group"
	case ScopeBroadcast:
		return "broadcast"
	default:
		return "direct"
	}
}

// MessageKind is the coarse type tag a transport assigns to an inbound message.
type MessageKind string

const (
	KindText        MessageKind = "text"
	KindMedia       MessageKind = "media"
	KindUnsupported MessageKind = "unsupported"
)

// InboundMessage is one message received from a transport. It is read-only
// once published and lives for a single dispatch pass.
type InboundMessage struct {
	Channel   string
	ID        string // transport message id, used for redelivery dedup
	ChatID    string // conversation to reply to
	SenderID  string // forwarded to the backend as the user identifier
	Scope     Scope
	Kind      MessageKind
	Type      string // raw transport type tag (e.g. "image", "e2e_notification")
	Body      string // text body or media caption
	HasMedia  bool
	MediaRef  string // transport-specific handle passed back to DownloadMedia
	MediaMIME string // declared MIME type, when the transport knows it up front
	MediaName string // original file name, when known
	Timestamp time.Time
}

// MediaPayload is a fully buffered media attachment.
type MediaPayload struct {
	Data     []byte
	MIMEType string
	Filename string
}

// OutboundMessage is a reply routed back to the conversation it came from.
// Exactly one of Text or Media is set.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Text    string
	Media   *MediaPayload
	Voice   bool // deliver Media as a voice note
}
