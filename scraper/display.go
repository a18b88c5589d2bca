package scraper

import (
	"strings"
)

const displaySeparator = "|"

// splitDisplay splits "05 | Benta Berri" into code and name. Whitespace around
// the separator may be plain or non-breaking; both sides are trimmed. Text
// without a separator or with an empty code is rejected. When the text holds
// more than one separator the name is the segment between the first two, so
// "B1 | Zubieta | Lasarte" yields "Zubieta".
func splitDisplay(text string) (code, name string, ok bool) {
	parts := strings.SplitN(text, displaySeparator, 3)
	if len(parts) < 2 {
		return "", "", false
	}

	code = strings.TrimSpace(parts[0])
	if code == "" {
		return "", "", false
	}

	name = strings.TrimSpace(parts[1])

	return code, name, true
}
