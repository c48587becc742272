package media

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextIntoBlocks_SentenceBoundaries(t *testing.T) {
	blocks := SplitTextIntoBlocks("Hello world. This is a test!", 15)
	assert.Equal(t, []string{"Hello world.", "This is a test!"}, blocks)
}

func TestSplitTextIntoBlocks_ShortTextSingleBlock(t *testing.T) {
	blocks := SplitTextIntoBlocks("Just a short reply", 500)
	assert.Equal(t, []string{"Just a short reply"}, blocks)
}

func TestSplitTextIntoBlocks_Empty(t *testing.T) {
	assert.Empty(t, SplitTextIntoBlocks("", 500))
	assert.Empty(t, SplitTextIntoBlocks("\n\n", 500))
}

func TestSplitTextIntoBlocks_PacksSentences(t *testing.T) {
	blocks := SplitTextIntoBlocks("One. Two. Three. Four.", 10)
	assert.Equal(t, []string{"One. Two.", "Three.", "Four."}, blocks)
}

func TestSplitTextIntoBlocks_LongSentenceSplitsAtSpaces(t *testing.T) {
	text := strings.Repeat("word ", 30) + "end."
	blocks := SplitTextIntoBlocks(text, 22)
	require.Greater(t, len(blocks), 1)
	for _, b := range blocks {
		assert.LessOrEqual(t, utf8.RuneCountInString(b), 22)
		assert.False(t, strings.HasPrefix(b, "ord"), "block %q split mid-word", b)
	}
}

func TestSplitTextIntoBlocks_HardCutWithoutSpaces(t *testing.T) {
	text := strings.Repeat("x", 25)
	blocks := SplitTextIntoBlocks(text, 10)
	assert.Equal(t, []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}, blocks)
}

func TestSplitTextIntoBlocks_CountsRunes(t *testing.T) {
	text := "Olá, você está bem? Está tudo ótimo!"
	blocks := SplitTextIntoBlocks(text, 20)
	assert.Equal(t, []string{"Olá, você está bem?", "Está tudo ótimo!"}, blocks)
}

func TestSplitTextIntoBlocks_ClosingQuotesStayWithSentence(t *testing.T) {
	blocks := SplitTextIntoBlocks(`He said "stop." Then left.`, 16)
	assert.Equal(t, []string{`He said "stop."`, "Then left."}, blocks)
}

func TestSplitTextIntoBlocks_NonPositiveMaxUsesDefault(t *testing.T) {
	text := strings.Repeat("a", DefaultMaxBlockLength+1)
	blocks := SplitTextIntoBlocks(text, 0)
	require.Len(t, blocks, 2)
	assert.Len(t, blocks[0], DefaultMaxBlockLength)
}

// Blocks rejoined without separators must reproduce the source once
// whitespace is ignored, and every block must respect the limit.
func TestSplitTextIntoBlocks_Properties(t *testing.T) {
	inputs := []string{
		"A quick test. With several sentences! And questions? Yes.",
		strings.Repeat("lorem ipsum dolor sit amet ", 40),
		"no terminator at all but quite a few words in a row here",
		"Line one.\nLine two without end\nLine three!",
		strings.Repeat("z", 77) + " tail.",
	}
	strip := func(s string) string { return strings.Join(strings.Fields(s), "") }

	for _, in := range inputs {
		for _, max := range []int{5, 12, 40, 500} {
			blocks := SplitTextIntoBlocks(in, max)
			for _, b := range blocks {
				assert.LessOrEqual(t, utf8.RuneCountInString(b), max, "input %q max %d", in, max)
				assert.NotEmpty(t, b)
			}
			assert.Equal(t, strip(in), strip(strings.Join(blocks, "")), "input %q max %d", in, max)
		}
	}
}
