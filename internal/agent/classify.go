package agent

import (
	"regexp"
	"strings"

	"difyrelay/internal/domain"
)

// Route is the first branch a message takes through the dispatcher.
type Route int

const (
	RouteIgnore Route = iota
	RouteText
	RouteMedia
	RouteUnsupported
)

func (r Route) String() string {
	switch r {
	case RouteText:
		return "text"
	case RouteMedia:
		return "media"
	case RouteUnsupported:
		return "unsupported"
	default:
		return "ignore"
	}
}

const (
	broadcastID = "status@broadcast"
	groupMarker = "@g.us"
)

// Transport-internal message types that never get a reply.
var ignoredTypes = map[string]bool{
	"notification_template": true,
	"e2e_notification":      true,
}

// Classify decides whether and how a message is handled. Group and broadcast
// conversations are ignored whether the transport flagged the scope or only
// the identifier gives it away.
func Classify(msg domain.InboundMessage) Route {
	if msg.Scope != domain.ScopeDirect || isGroupOrBroadcast(msg.ChatID) || isGroupOrBroadcast(msg.SenderID) {
		return RouteIgnore
	}
	if ignoredTypes[msg.Type] {
		return RouteIgnore
	}
	switch {
	case msg.Kind == domain.KindText:
		return RouteText
	case msg.HasMedia:
		return RouteMedia
	default:
		return RouteUnsupported
	}
}

func isGroupOrBroadcast(id string) bool {
	return id == broadcastID || strings.Contains(id, groupMarker)
}

var filenameLike = regexp.MustCompile(`^\d+\.\w+$`)

// IsMeaningfulQuery reports whether a media caption is worth forwarding as
// the query instead of the category's default prompt.
func IsMeaningfulQuery(text string) bool {
	t := strings.TrimSpace(text)
	return len([]rune(t)) > 10 && !filenameLike.MatchString(t)
}

// DefaultAudioRequestPhrases are matched case-insensitively anywhere in a
// text message body.
var DefaultAudioRequestPhrases = []string{
	"responda em áudio",
	"responda em audio",
	"me responda em áudio",
	"me responda em audio",
	"reply with audio",
	"answer with audio",
	"reply in audio",
}

// WantsAudioReply reports whether body asks for a spoken answer.
func WantsAudioReply(body string, phrases []string) bool {
	lower := strings.ToLower(body)
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" && strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
