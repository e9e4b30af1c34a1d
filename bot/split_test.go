package bot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitMessageShortTextUnchanged(t *testing.T) {
	assert.Equal(t, []string{"hello"}, splitMessage("hello"))
}

func TestSplitMessageSplitsOnLastNewline(t *testing.T) {
	first := strings.Repeat("a", maxMessageLength-10) + "\n" + strings.Repeat("b", 5)
	second := strings.Repeat("c", 20)
	text := first + "\n" + second

	parts := splitMessage(text)
	assert.Len(t, parts, 2)
	assert.True(t, strings.HasSuffix(parts[0], "bbbbb"))
	assert.Equal(t, second, parts[1])
}

func TestSplitMessageHardSplitsWhenNoNewline(t *testing.T) {
	text := strings.Repeat("x", maxMessageLength+100)
	parts := splitMessage(text)
	assert.Len(t, parts, 2)
	assert.Equal(t, maxMessageLength, len([]rune(parts[0])))
	assert.Equal(t, 100, len([]rune(parts[1])))
}

func TestSplitMessageRecursesOnBothHalves(t *testing.T) {
	text := strings.Repeat("y", maxMessageLength*2+50)
	parts := splitMessage(text)
	assert.Len(t, parts, 3)
	total := 0
	for _, p := range parts {
		total += len([]rune(p))
	}
	assert.Equal(t, len([]rune(text)), total)
}
