package usecase

import "strings"

var sentenceEnders = []string{". ", ".\n", "! ", "? "}

// smartTruncate shortens text to at most maxLen runes, preferring to cut at a
// sentence boundary. A boundary only counts if it keeps more than half of the
// window; otherwise the cut falls back to the last space, then to a hard cut.
func smartTruncate(text string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}

	window := string(runes[:maxLen])
	best := -1
	for _, ender := range sentenceEnders {
		if idx := strings.LastIndex(window, ender); idx > best {
			best = idx
		}
	}
	if best > maxLen/2 {
		return strings.TrimSpace(window[:best+1])
	}

	if idx := strings.LastIndex(window, " "); idx > 0 {
		return strings.TrimSpace(window[:idx]) + "..."
	}
	return window + "..."
}
