package media

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMIME(t *testing.T) {
	assert.Equal(t, "audio/ogg", NormalizeMIME("audio/ogg; codecs=opus"))
	assert.Equal(t, "image/png", NormalizeMIME("  IMAGE/PNG "))
	assert.Equal(t, "", NormalizeMIME(""))
}

func TestIsSupported(t *testing.T) {
	table := NewFormatTable(nil, nil)

	tests := []struct {
		mime     string
		category Category
		want     bool
	}{
		{"audio/ogg; codecs=opus", CategoryAudio, true},
		{"application/zip", CategoryDocument, false},
		{"application/pdf", CategoryDocument, true},
		{"image/JPEG", CategoryImage, true},
		{"image/tiff", CategoryImage, false},
		{"audio/mpeg", CategoryVideo, true},
		{"video/webm", CategoryVideo, false},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			assert.Equal(t, tt.want, table.IsSupported(tt.mime, tt.category))
		})
	}
}

func TestIsSupported_UnknownCategoryWarns(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	table := NewFormatTable(nil, logger)

	assert.False(t, table.IsSupported("image/png", Category("sticker")))
	assert.Contains(t, buf.String(), "format category not defined")
}

func TestCategoryOf(t *testing.T) {
	table := NewFormatTable(nil, nil)

	tests := []struct {
		mime string
		want Category
		ok   bool
	}{
		{"image/webp", CategoryImage, true},
		{"audio/ogg; codecs=opus", CategoryAudio, true},
		{"audio/mpeg", CategoryAudio, true},
		{"video/quicktime", CategoryVideo, true},
		{"application/pdf", CategoryDocument, true},
		{"text/csv", CategoryDocument, true},
		{"message/rfc822", CategoryDocument, true},
		{"image/tiff", "", false},
		{"application/zip", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			got, ok := table.CategoryOf(tt.mime)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewFormatTable_Custom(t *testing.T) {
	table := NewFormatTable(map[Category][]string{
		CategoryImage: {"Image/HEIC"},
	}, nil)

	assert.True(t, table.IsSupported("image/heic", CategoryImage))
	assert.False(t, table.IsSupported("image/png", CategoryImage))
	assert.False(t, table.IsSupported("application/pdf", CategoryDocument))
}
