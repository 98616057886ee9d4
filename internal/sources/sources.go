// Package sources holds the fetch adapters that pull new raw records
// from each external source and normalize them into items. Each adapter
// consults the state tracker for its cursor before fetching and commits
// the new cursor after. Fetch failures are per-source: that source
// contributes zero items this run, the run goes on.
package sources

import (
	"fmt"
)

// FetchError wraps a per-source fetch failure (network, auth, rate
// limit). Non-fatal: the pipeline logs it and degrades that source's
// contribution to zero for the run.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
