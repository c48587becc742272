// Package audio converts voice payloads between containers and joins
// synthesized segments into a single voice note, using ffmpeg as the engine.
package audio

import (
	"strings"

	"difyrelay/internal/media"
)

// Format is an audio container understood by the engine.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatOGG  Format = "ogg"
	FormatMP3  Format = "mp3"
	FormatM4A  Format = "m4a"
	FormatWEBM Format = "webm"
	FormatAMR  Format = "amr"
)

// Codec selects the output encoder. CodecDefault lets the muxer choose.
type Codec string

const (
	CodecDefault Codec = ""
	CodecOpus    Codec = "libopus"
	CodecCopy    Codec = "copy"
)

// VoiceNoteMIME is the MIME type transports expect for voice notes.
const VoiceNoteMIME = "audio/ogg; codecs=opus"

// demuxer returns the ffmpeg -f name used to read f from a pipe.
func (f Format) demuxer() string {
	switch f {
	case FormatM4A:
		return "mov"
	case FormatWEBM:
		return "matroska"
	default:
		return string(f)
	}
}

// FormatFromExtension maps a file extension (with or without the dot) to a
// format.
func FormatFromExtension(ext string) (Format, bool) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "wav":
		return FormatWAV, true
	case "ogg", "oga", "opus":
		return FormatOGG, true
	case "mp3":
		return FormatMP3, true
	case "m4a":
		return FormatM4A, true
	case "webm":
		return FormatWEBM, true
	case "amr":
		return FormatAMR, true
	default:
		return "", false
	}
}

// FormatFromMIME maps an audio MIME type to a format.
func FormatFromMIME(mime string) (Format, bool) {
	switch media.NormalizeMIME(mime) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return FormatWAV, true
	case "audio/ogg", "audio/opus":
		return FormatOGG, true
	case "audio/mpeg", "audio/mp3":
		return FormatMP3, true
	case "audio/mp4", "audio/x-m4a", "audio/aac":
		return FormatM4A, true
	case "audio/webm":
		return FormatWEBM, true
	case "audio/amr":
		return FormatAMR, true
	default:
		return "", false
	}
}
