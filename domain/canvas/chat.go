package canvas

import (
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`#\w+`)

// ParseChatMessage splits a chat box submission into node text and tags.
// Tags are "#word" tokens, returned without the hash in first-seen order.
// ok is false when no text remains once the tags are removed.
func ParseChatMessage(msg string) (text string, tags []string, ok bool) {
	matches := tagPattern.FindAllString(msg, -1)
	raw := make([]string, len(matches))
	for i, m := range matches {
		raw[i] = strings.TrimPrefix(m, "#")
	}
	tags = dedupeTags(raw)

	text = strings.TrimSpace(tagPattern.ReplaceAllString(msg, ""))
	return text, tags, text != ""
}
