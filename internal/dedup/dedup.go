// Package dedup collapses duplicate items by normalized URL, both within
// a run and against URLs already surfaced in recent runs.
package dedup

import (
	"aidigest/internal/item"
)

// RecentIndex answers whether a URL was already emitted within the
// trailing dedup window. The run state tracker implements it.
type RecentIndex interface {
	RecentlyEmitted(url string) bool
}

// Result carries the surviving items plus the counter surfaced in run
// statistics.
type Result struct {
	Items             []item.Item
	DuplicatesRemoved int
}

// Dedupe keeps at most one item per URL. Among same-URL duplicates the
// highest-priority source wins (official feeds over social copies); ties
// keep the first occurrence. Items whose URL was already emitted within
// the recent window are dropped entirely. recent may be nil.
func Dedupe(items []item.Item, recent RecentIndex) Result {
	index := make(map[string]int, len(items))
	out := make([]item.Item, 0, len(items))
	removed := 0

	for _, it := range items {
		if recent != nil && recent.RecentlyEmitted(it.URL) {
			removed++
			continue
		}
		if i, seen := index[it.URL]; seen {
			removed++
			if it.SourceType.Priority() < out[i].SourceType.Priority() {
				out[i] = it
			}
			continue
		}
		index[it.URL] = len(out)
		out = append(out, it)
	}
	return Result{Items: out, DuplicatesRemoved: removed}
}
