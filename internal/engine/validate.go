package engine

import (
	"fmt"
	"strings"
)

// maxContentChars caps a memory's content size.
const maxContentChars = 2000

// extractionCandidate is the JSON structure returned by the extraction oracle.
type extractionCandidate struct {
	ShouldMemorize bool     `json:"should_memorize"`
	Type           string   `json:"type"`
	Content        string   `json:"content"`
	Importance     int      `json:"importance"`
	Tags           []string `json:"tags"`
	UserSentiment  string   `json:"user_sentiment"`
}

// validateCandidate checks an extraction candidate for obvious garbage.
// The type enum is open: unknown values pass through. Importance is clamped
// into [1, 10] rather than rejected.
func validateCandidate(c extractionCandidate) (extractionCandidate, error) {
	c.Content = strings.TrimSpace(c.Content)
	if c.Content == "" {
		return c, fmt.Errorf("empty content")
	}
	if len(c.Content) > maxContentChars {
		c.Content = strings.TrimSpace(c.Content[:maxContentChars])
	}

	if strings.TrimSpace(c.Type) == "" {
		c.Type = "interaction"
	}

	c.Importance = clampInt(c.Importance, 1, 10)
	c.Tags = sanitizeTags(c.Tags)
	return c, nil
}

// sanitizeTags lowercases, trims, and dedupes tags, dropping empties.
func sanitizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
