package notify

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	maxTextRunes    = 4096
	maxCaptionRunes = 1024

	notCapturedText = "(not captured)"
	unknownSender   = "Unknown"
)

func escape(s string) string {
	return html.EscapeString(s)
}

func blockquote(s string) string {
	return "<blockquote>" + escape(s) + "</blockquote>"
}

func senderLabel(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = unknownSender
	}
	return escape(name)
}

// truncateContent shortens raw content before escaping so the rendered
// report stays under the transport limit.
func truncateContent(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}

func savedFileLine(path string) string {
	return fmt.Sprintf("📂 <b>Saved file:</b> %s", escape(filepath.Base(path)))
}
