package telegram

import (
	"fmt"
	"strings"
)

// RenderPrompt formats a decision prompt for the operator. Options are
// numbered starting at 1 so a bare digit reply can select one.
func RenderPrompt(summary string, options []string) string {
	var b strings.Builder
	b.WriteString("Summary: ")
	b.WriteString(summary)
	if len(options) > 0 {
		b.WriteString("\nOptions:")
		for i, opt := range options {
			fmt.Fprintf(&b, "\n%d) %s", i+1, opt)
		}
	}
	b.WriteString("\nReply with plain text.")
	return b.String()
}

// ParseReply strips the optional /answer and /a command prefixes from an
// operator message and trims whitespace. The returned text may be empty.
func ParseReply(text string) string {
	cleaned := strings.TrimSpace(text)
	for _, prefix := range []string{"/answer", "/a"} {
		if cleaned == prefix {
			return ""
		}
		if strings.HasPrefix(cleaned, prefix+" ") {
			return strings.TrimSpace(cleaned[len(prefix):])
		}
	}
	return cleaned
}
