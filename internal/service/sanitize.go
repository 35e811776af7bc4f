package service

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// cleanText strips markup from user supplied text and returns it unescaped,
// so "Q&A" is stored as typed. Passes repeat until the value is stable, which
// makes cleaning an already clean value a no-op.
func cleanText(policy *bluemonday.Policy, value string) string {
	cleaned := strings.TrimSpace(value)
	for pass := 0; pass < 4; pass++ {
		next := strings.TrimSpace(html.UnescapeString(policy.Sanitize(cleaned)))
		if next == cleaned {
			break
		}
		cleaned = next
	}
	return cleaned
}
