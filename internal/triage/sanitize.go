package triage

import (
	"regexp"
	"strings"
)

var (
	codeBlockPattern  = regexp.MustCompile("(?s)```.*?```")
	inlineCodePattern = regexp.MustCompile("`[^`\n]*`")
	// Custom emoji: <:name:id>, <a:name:id> for animated ones, or any other
	// single-letter tag.
	customEmojiPattern = regexp.MustCompile(`<[a-z]?:[^:>\s]+:\d+>`)
)

// Sanitize strips markup noise from a raw chat message. Code blocks go first
// so that emoji tokens inside a block are removed together with the block.
// The result only ever loses characters; an empty result means "skip".
func Sanitize(raw string) string {
	s := codeBlockPattern.ReplaceAllString(raw, "")
	s = inlineCodePattern.ReplaceAllString(s, "")
	s = customEmojiPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
