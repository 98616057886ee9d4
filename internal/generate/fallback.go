package generate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"aidigest/internal/item"
)

// FallbackSummary builds a deterministic template summary for an item
// whose AI generation failed. Report-only: never submitted to the draft
// validator as an AI-authored draft.
func FallbackSummary(it item.Item) string {
	var comment string
	switch it.SourceType {
	case item.SourceRSS:
		comment = "Official announcement."
	case item.SourceRepoRelease:
		comment = "New release is out."
	case item.SourcePageWatch:
		comment = "Page content changed."
	default:
		comment = "Worth a look."
	}

	title := it.Title
	if utf8.RuneCountInString(title) > 80 {
		runes := []rune(title)
		title = strings.TrimSpace(string(runes[:80])) + "..."
	}

	return fmt.Sprintf("%s\n\n%s Details: %s", title, comment, it.URL)
}
