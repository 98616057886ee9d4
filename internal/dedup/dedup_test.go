package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"aidigest/internal/item"
)

type recentSet map[string]bool

func (r recentSet) RecentlyEmitted(url string) bool { return r[url] }

func TestDedupeKeepsHigherPrioritySource(t *testing.T) {
	items := []item.Item{
		{ID: "social", URL: "https://example.com/a", SourceType: item.SourceSocialAccount},
		{ID: "rss", URL: "https://example.com/a", SourceType: item.SourceRSS},
	}

	got := Dedupe(items, nil)
	assert.Len(t, got.Items, 1)
	assert.Equal(t, "rss", got.Items[0].ID)
	assert.Equal(t, 1, got.DuplicatesRemoved)

	// Order flipped, same winner.
	got = Dedupe([]item.Item{items[1], items[0]}, nil)
	assert.Equal(t, "rss", got.Items[0].ID)
}

func TestDedupeTieKeepsFirst(t *testing.T) {
	items := []item.Item{
		{ID: "first", URL: "https://example.com/a", SourceType: item.SourceSocialSearch},
		{ID: "second", URL: "https://example.com/a", SourceType: item.SourceSocialSearch},
	}
	got := Dedupe(items, nil)
	assert.Equal(t, "first", got.Items[0].ID)
	assert.Equal(t, 1, got.DuplicatesRemoved)
}

func TestDedupePreservesFirstOccurrenceOrder(t *testing.T) {
	items := []item.Item{
		{ID: "a1", URL: "https://example.com/a", SourceType: item.SourceSocialAccount},
		{ID: "b1", URL: "https://example.com/b", SourceType: item.SourceSocialAccount},
		{ID: "a2", URL: "https://example.com/a", SourceType: item.SourceRSS},
	}
	got := Dedupe(items, nil)
	assert.Equal(t, "https://example.com/a", got.Items[0].URL)
	assert.Equal(t, "a2", got.Items[0].ID)
	assert.Equal(t, "b1", got.Items[1].ID)
}

func TestDedupeRecentWindow(t *testing.T) {
	items := []item.Item{
		{ID: "old", URL: "https://example.com/seen", SourceType: item.SourceRSS},
		{ID: "new", URL: "https://example.com/fresh", SourceType: item.SourceRSS},
	}
	got := Dedupe(items, recentSet{"https://example.com/seen": true})
	assert.Len(t, got.Items, 1)
	assert.Equal(t, "new", got.Items[0].ID)
	assert.Equal(t, 1, got.DuplicatesRemoved)
}

func TestDedupeEmpty(t *testing.T) {
	got := Dedupe(nil, nil)
	assert.Empty(t, got.Items)
	assert.Zero(t, got.DuplicatesRemoved)
}
