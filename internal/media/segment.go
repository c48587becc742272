package media

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxBlockLength bounds each block sent to the speech backend.
const DefaultMaxBlockLength = 500

// sentencePattern matches a run of text ending in terminators (plus any
// closing quotes or brackets), the unterminated remainder of a line, or a
// run of line breaks.
var sentencePattern = regexp.MustCompile("[^.!?]+[.!?]+[\\])'\"`’”]*|.+|\n+")

// SplitTextIntoBlocks splits text into ordered blocks of at most maxLen
// characters. Sentences are packed greedily; a sentence longer than maxLen
// is cut at the last space before the limit, or at the limit itself when
// the span has no space. Empty input yields no blocks.
func SplitTextIntoBlocks(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxBlockLength
	}

	sentences := sentencePattern.FindAllString(text, -1)
	if len(sentences) == 0 {
		return hardSplit(text, maxLen, false)
	}

	var (
		blocks  []string
		current string
	)
	flush := func() {
		if b := strings.TrimSpace(current); b != "" {
			blocks = append(blocks, b)
		}
		current = ""
	}

	for _, sentence := range sentences {
		if current == "" {
			sentence = strings.TrimLeftFunc(sentence, unicode.IsSpace)
		}
		if runeLen(current+sentence) <= maxLen {
			current += sentence
			continue
		}

		flush()
		sentence = strings.TrimLeftFunc(sentence, unicode.IsSpace)
		if runeLen(sentence) > maxLen {
			blocks = append(blocks, hardSplit(sentence, maxLen, true)...)
		} else {
			current = sentence
		}
	}
	flush()

	return blocks
}

// hardSplit cuts s into pieces of at most maxLen runes. With atWords set, a
// cut moves back to the last space inside the current span.
func hardSplit(s string, maxLen int, atWords bool) []string {
	runes := []rune(s)
	var pieces []string
	for start := 0; start < len(runes); {
		end := start + maxLen
		if end >= len(runes) {
			end = len(runes)
		} else if atWords {
			if sp := lastSpace(runes, start, end); sp > start {
				end = sp
			}
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			pieces = append(pieces, piece)
		}
		start = end
	}
	return pieces
}

// lastSpace returns the index of the last ' ' in runes[start:end], or -1.
func lastSpace(runes []rune, start, end int) int {
	for i := end; i > start; i-- {
		if i < len(runes) && runes[i] == ' ' {
			return i
		}
	}
	return -1
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
