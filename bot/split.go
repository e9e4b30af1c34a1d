package bot

import "strings"

// maxMessageLength is the platform's per-message code-point budget (§4.3).
const maxMessageLength = 4096

// splitMessage recursively segments text longer than maxMessageLength,
// splitting on the last newline within budget and falling back to a
// hard split when no newline exists (§4.3, §8, Design Note "Recursive
// message segmentation").
func splitMessage(text string) []string {
	runes := []rune(text)
	if len(runes) <= maxMessageLength {
		return []string{text}
	}

	head := runes[:maxMessageLength]
	splitAt := strings.LastIndex(string(head), "\n")
	cut := maxMessageLength
	if splitAt >= 0 {
		cut = len([]rune(string(head)[:splitAt]))
	}

	first := string(runes[:cut])
	var rest string
	if splitAt >= 0 {
		rest = string(runes[cut+1:]) // drop the newline itself
	} else {
		rest = string(runes[cut:])
	}

	return append([]string{first}, splitMessage(rest)...)
}
