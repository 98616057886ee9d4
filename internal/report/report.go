// Package report builds the structured run summary and hands it to a
// sink. The core does not format prose beyond the draft text itself; the
// Slack sink only lays the structure out as blocks.
package report

import (
	"context"

	"aidigest/internal/drafts"
	"aidigest/internal/item"
	"aidigest/internal/validate"
)

// Bucket is the top items of one category.
type Bucket struct {
	Category item.Category
	Items    []item.Item
}

// FallbackNote is an item whose AI generation failed; its template
// summary is report-only.
type FallbackNote struct {
	Item    item.Item
	Summary string
}

// Summary is the structured result of one run.
type Summary struct {
	Date              string
	Buckets           []Bucket
	Drafts            []drafts.Draft
	Fallbacks         []FallbackNote
	ItemsCollected    int
	DuplicatesRemoved int
	SourcesFailed     []string
	AccountCapReached bool
	SearchCapReached  bool
	JudgeBudgetSpent  bool
	Rejections        map[validate.Reason]int
}

// Sink receives the summary. The Slack webhook implements it; tests use
// a capture fake. The context cancels in-flight delivery and retries.
type Sink interface {
	Send(ctx context.Context, summary Summary) error
}
