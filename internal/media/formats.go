// Package media holds the pure helpers that decide what the relay can handle:
// MIME allow-lists per category and text segmentation for speech synthesis.
package media

import (
	"log/slog"
	"slices"
	"strings"
)

// Category is the coarse media classification used for routing.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryDocument Category = "document"
	CategoryAudio    Category = "audio"
	CategoryVideo    Category = "video"
)

// routeOrder is the order categories are tried when a MIME type's top-level
// type is not itself a category (e.g. application/pdf).
var routeOrder = []Category{CategoryImage, CategoryAudio, CategoryVideo, CategoryDocument}

// DefaultFormats returns the accepted MIME types per category.
func DefaultFormats() map[Category][]string {
	return map[Category][]string{
		CategoryImage: {
			"image/jpeg",
			"image/jpg",
			"image/png",
			"image/gif",
			"image/webp",
			"image/svg+xml",
		},
		CategoryDocument: {
			"text/plain",
			"text/markdown",
			"application/pdf",
			"text/html",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			"application/vnd.ms-excel",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"text/csv",
			"message/rfc822",
		},
		CategoryAudio: {
			"audio/mpeg",
			"audio/mp4",
			"audio/x-m4a",
			"audio/wav",
			"audio/webm",
			"audio/amr",
			"audio/ogg",
		},
		CategoryVideo: {
			"video/mp4",
			"video/quicktime",
			"video/mpeg",
			"audio/mpeg",
		},
	}
}

// FormatTable is a read-only allow-list of MIME types per category.
type FormatTable struct {
	formats map[Category][]string
	logger  *slog.Logger
}

// NewFormatTable builds a table from formats. A nil map uses DefaultFormats.
// Entries are normalized on construction.
func NewFormatTable(formats map[Category][]string, logger *slog.Logger) *FormatTable {
	if formats == nil {
		formats = DefaultFormats()
	}
	if logger == nil {
		logger = slog.Default()
	}
	normalized := make(map[Category][]string, len(formats))
	for cat, mimes := range formats {
		for _, m := range mimes {
			normalized[cat] = append(normalized[cat], NormalizeMIME(m))
		}
	}
	return &FormatTable{formats: normalized, logger: logger}
}

// NormalizeMIME strips parameters after ';', trims and lowercases.
func NormalizeMIME(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

// IsSupported reports whether mime belongs to the category's accepted set.
// An unknown category is a configuration error: it is logged and reported
// as unsupported.
func (t *FormatTable) IsSupported(mime string, category Category) bool {
	accepted, ok := t.formats[category]
	if !ok {
		t.logger.Warn("format category not defined", "category", category)
		return false
	}
	return slices.Contains(accepted, NormalizeMIME(mime))
}

// CategoryOf picks the handling category for mime. When the top-level type
// names a category, only that category's list is consulted, so an
// "image/tiff" upload is rejected rather than re-routed. Otherwise the
// categories are tried in route order.
func (t *FormatTable) CategoryOf(mime string) (Category, bool) {
	norm := NormalizeMIME(mime)
	top, _, _ := strings.Cut(norm, "/")

	if slices.Contains(routeOrder, Category(top)) {
		if t.IsSupported(norm, Category(top)) {
			return Category(top), true
		}
		return "", false
	}

	for _, cat := range routeOrder {
		if _, ok := t.formats[cat]; ok && t.IsSupported(norm, cat) {
			return cat, true
		}
	}
	return "", false
}
