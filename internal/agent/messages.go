package agent

import "difyrelay/internal/media"

// CategoryText keys the failure texts of plain text messages.
const CategoryText = "text"

// FailureText holds the user-facing replies for one category. An empty
// EmptyQuery falls back to Generic. SuppressGeneric logs generic failures
// without replying.
type FailureText struct {
	ContentPolicy   string
	EmptyQuery      string
	Generic         string
	SuppressGeneric bool
}

// Messages are the user-facing fallback texts.
type Messages struct {
	Unsupported     string
	Generic         string
	Failures        map[string]FailureText
	ImageSend       string
	AudioGeneration string
	SpeechFailed    string
	AudioSend       string
}

func DefaultMessages() Messages {
	return Messages{
		Unsupported: "Sorry, this type of message is not supported.",
		Generic:     "Sorry, an error occurred while processing your message.",
		Failures: map[string]FailureText{
			CategoryText: {
				ContentPolicy: "Sorry, your message could not be processed due to a content policy violation.",
				Generic:       "Sorry, an error occurred while processing your message.",
			},
			string(media.CategoryImage): {
				ContentPolicy:   "Sorry, your image could not be processed due to a content policy violation.",
				EmptyQuery:      "Sorry, the image could not be processed because the query is empty.",
				Generic:         "Sorry, an error occurred while processing your image.",
				SuppressGeneric: true,
			},
			string(media.CategoryAudio): {
				ContentPolicy: "Sorry, your audio could not be processed due to a content policy violation.",
				EmptyQuery:    "Sorry, the audio could not be processed because the query is empty.",
				Generic:       "Sorry, an error occurred while processing your audio.",
			},
			string(media.CategoryVideo): {
				ContentPolicy: "Sorry, your video could not be processed due to a content policy violation.",
				EmptyQuery:    "Sorry, the video could not be processed because the query is empty.",
				Generic:       "Sorry, an error occurred while processing your video.",
			},
			string(media.CategoryDocument): {
				ContentPolicy: "Sorry, your document could not be processed due to a content policy violation.",
				EmptyQuery:    "Sorry, the document could not be processed because the query is empty.",
				Generic:       "Sorry, an error occurred while processing your document.",
			},
		},
		ImageSend:       "Sorry, an error occurred while sending the image.",
		AudioGeneration: "Sorry, an error occurred while generating the audio.",
		SpeechFailed:    "Sorry, an error occurred while converting the text to audio.",
		AudioSend:       "Sorry, an error occurred while sending the audio.",
	}
}

// Prompts replace a media caption that is not a meaningful query.
type Prompts struct {
	Image    string
	Video    string
	Document string
}

func DefaultPrompts() Prompts {
	return Prompts{
		Image:    "Describe this image.",
		Video:    "Analyze this video.",
		Document: "Summarize this document.",
	}
}

func (p Prompts) forCategory(c media.Category) string {
	switch c {
	case media.CategoryImage:
		return p.Image
	case media.CategoryVideo:
		return p.Video
	case media.CategoryDocument:
		return p.Document
	}
	return ""
}

// failureFor picks the reply for a failed step, or "" for no reply.
func (m Messages) failureFor(category string, contentPolicy, emptyQuery bool) string {
	ft, ok := m.Failures[category]
	if !ok {
		return m.Generic
	}
	switch {
	case contentPolicy && ft.ContentPolicy != "":
		return ft.ContentPolicy
	case emptyQuery && ft.EmptyQuery != "":
		return ft.EmptyQuery
	case ft.SuppressGeneric:
		return ""
	case ft.Generic != "":
		return ft.Generic
	}
	return m.Generic
}
