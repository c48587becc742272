// Package reply classifies a backend answer into the message that should be
// delivered: an inline image, a linked file, or plain text.
package reply

import (
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"
)

type Kind int

const (
	KindText Kind = iota
	KindImage
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindFile:
		return "file"
	default:
		return "text"
	}
}

var (
	imageRef = regexp.MustCompile(`!\[.*?\]\((.*?)\)`)
	fileRef  = regexp.MustCompile(`\[.*?\]\((.*?)\)`)
)

// Reply is the classified form of an answer.
type Reply struct {
	Kind Kind
	URL  string
	// Caption is the answer with the first image reference removed. Only
	// set for KindImage.
	Caption string
	Text    string
}

// Parse checks for a markdown image reference first, then for a link.
// Only the first match of each pattern is used.
func Parse(answer string) Reply {
	if m := imageRef.FindStringSubmatchIndex(answer); m != nil {
		caption := answer[:m[0]] + answer[m[1]:]
		return Reply{
			Kind:    KindImage,
			URL:     answer[m[2]:m[3]],
			Caption: strings.TrimSpace(caption),
			Text:    answer,
		}
	}
	if u, ok := FileURL(answer); ok {
		return Reply{Kind: KindFile, URL: u, Text: answer}
	}
	return Reply{Kind: KindText, Text: answer}
}

// FileURL returns the target of the first link-shaped reference. Image
// references match too, since they contain a link.
func FileURL(answer string) (string, bool) {
	m := fileRef.FindStringSubmatch(answer)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Extension returns the lowercased extension of the URL path without the
// dot, ignoring query string and fragment.
func Extension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	return strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
}

// ImageMIME guesses an image MIME type from the URL extension, falling back
// to image/png.
func ImageMIME(rawURL string) string {
	ext := Extension(rawURL)
	if ext == "" {
		return "image/png"
	}
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png", "gif", "webp", "bmp", "tiff":
		return "image/" + ext
	case "svg":
		return "image/svg+xml"
	}
	if t := mime.TypeByExtension("." + ext); strings.HasPrefix(t, "image/") {
		return t
	}
	return "image/png"
}
