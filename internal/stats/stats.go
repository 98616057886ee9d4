// Package stats aggregates per-run counters surfaced in the report.
package stats

import (
	"sync"

	"aidigest/internal/validate"
)

// Run holds the counters for one pipeline invocation.
type Run struct {
	mu sync.Mutex

	ItemsCollected    int
	DuplicatesRemoved int
	FetchedBySource   map[string]int
	SourcesFailed     []string
	AccountCapReached bool
	SearchCapReached  bool
	JudgeBudgetSpent  bool
	DraftsAccepted    int
	Rejections        map[validate.Reason]int
	Fallbacks         int
}

// NewRun starts an empty counter set.
func NewRun() *Run {
	return &Run{
		FetchedBySource: make(map[string]int),
		Rejections:      make(map[validate.Reason]int),
	}
}

// AddFetched records items collected for a named source group.
func (r *Run) AddFetched(source string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FetchedBySource[source] += n
	r.ItemsCollected += n
}

// SourceFailed records a source that contributed nothing this run.
func (r *Run) SourceFailed(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SourcesFailed = append(r.SourcesFailed, source)
}

// AddDuplicates bumps the duplicates_removed counter.
func (r *Run) AddDuplicates(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.DuplicatesRemoved += n
}

// Reject tallies a validation rejection by reason code.
func (r *Run) Reject(reason validate.Reason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Rejections[reason]++
}

// Accept bumps the accepted draft counter.
func (r *Run) Accept() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.DraftsAccepted++
}

// Fallback records a generation failure that used the template summary.
func (r *Run) Fallback() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Fallbacks++
}
