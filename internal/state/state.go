// Package state persists the incremental run cursors: per-source
// high-water marks, daily request counters and watched-page content
// hashes. Two JSON documents on disk, both written atomically.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ErrCorrupt marks an unreadable state document. The run must abort
// rather than risk overwriting a cursor it could not read.
var ErrCorrupt = errors.New("state document corrupt")

const stateVersion = "1.0.0"

type accountCursor struct {
	UserID  string `json:"user_id,omitempty"`
	SinceID string `json:"since_id"`
}

type meta struct {
	LastRunAt *time.Time `json:"last_run_at"`
	Version   string     `json:"version"`
}

type cursorDoc struct {
	Accounts map[string]accountCursor `json:"x_accounts"`
	Keywords map[string]string        `json:"x_keywords"`
	Feeds    map[string]string        `json:"rss"`
	Releases map[string]string        `json:"releases"`
	Recently map[string]time.Time     `json:"recently_posted_urls"`
	Counters counters                 `json:"counters"`
	Meta     meta                     `json:"meta"`
}

type counters struct {
	Date     string         `json:"date"`
	Requests map[string]int `json:"requests"`
}

type pageDoc struct {
	Hashes map[string]string `json:"hashes"`
}

// Tracker is the incremental state for one run. Single writer; the
// pipeline loads it once, mutates it in memory and saves after the run.
type Tracker struct {
	cursorPath string
	pagePath   string
	loc        *time.Location
	window     time.Duration
	now        func() time.Time

	cursors cursorDoc
	pages   pageDoc
}

// Option tweaks a Tracker; used by tests to pin the clock.
type Option func(*Tracker)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Load reads both state documents. Missing files start empty; unreadable
// files return ErrCorrupt. window is the trailing dedup window for
// recently emitted URLs; loc is the timezone whose midnight resets the
// daily counters.
func Load(cursorPath, pagePath string, window time.Duration, loc *time.Location, opts ...Option) (*Tracker, error) {
	if loc == nil {
		loc = time.UTC
	}
	t := &Tracker{
		cursorPath: cursorPath,
		pagePath:   pagePath,
		loc:        loc,
		window:     window,
		now:        time.Now,
		cursors: cursorDoc{
			Accounts: map[string]accountCursor{},
			Keywords: map[string]string{},
			Feeds:    map[string]string{},
			Releases: map[string]string{},
			Recently: map[string]time.Time{},
			Counters: counters{Requests: map[string]int{}},
			Meta:     meta{Version: stateVersion},
		},
		pages: pageDoc{Hashes: map[string]string{}},
	}
	for _, opt := range opts {
		opt(t)
	}

	if err := readDoc(cursorPath, &t.cursors); err != nil {
		return nil, err
	}
	if err := readDoc(pagePath, &t.pages); err != nil {
		return nil, err
	}
	// Maps can come back nil from an older document.
	if t.cursors.Accounts == nil {
		t.cursors.Accounts = map[string]accountCursor{}
	}
	if t.cursors.Keywords == nil {
		t.cursors.Keywords = map[string]string{}
	}
	if t.cursors.Feeds == nil {
		t.cursors.Feeds = map[string]string{}
	}
	if t.cursors.Releases == nil {
		t.cursors.Releases = map[string]string{}
	}
	if t.cursors.Recently == nil {
		t.cursors.Recently = map[string]time.Time{}
	}
	if t.cursors.Counters.Requests == nil {
		t.cursors.Counters.Requests = map[string]int{}
	}
	if t.pages.Hashes == nil {
		t.pages.Hashes = map[string]string{}
	}
	if t.cursors.Meta.Version == "" {
		t.cursors.Meta.Version = stateVersion
	}
	return t, nil
}

func readDoc(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return nil
}

// AccountCursor returns the since_id for a social account, empty when
// the account was never fetched.
func (t *Tracker) AccountCursor(username string) string {
	return t.cursors.Accounts[username].SinceID
}

// CommitAccount records the newest tweet ID seen for an account. A
// cursor never regresses: a lower ID than the stored one is ignored.
func (t *Tracker) CommitAccount(username, userID, sinceID string) {
	cur := t.cursors.Accounts[username]
	if !newerID(sinceID, cur.SinceID) {
		return
	}
	t.cursors.Accounts[username] = accountCursor{UserID: userID, SinceID: sinceID}
}

// KeywordCursor returns the since_id for a search keyword.
func (t *Tracker) KeywordCursor(keyword string) string {
	return t.cursors.Keywords[keyword]
}

// CommitKeyword records the newest tweet ID seen for a keyword search.
func (t *Tracker) CommitKeyword(keyword, sinceID string) {
	if !newerID(sinceID, t.cursors.Keywords[keyword]) {
		return
	}
	t.cursors.Keywords[keyword] = sinceID
}

// FeedCursor returns the last published timestamp (RFC 3339) stored for
// a feed URL.
func (t *Tracker) FeedCursor(feedURL string) string {
	return t.cursors.Feeds[feedURL]
}

// CommitFeed records the newest published timestamp seen for a feed.
func (t *Tracker) CommitFeed(feedURL, publishedAt string) {
	if publishedAt <= t.cursors.Feeds[feedURL] {
		return
	}
	t.cursors.Feeds[feedURL] = publishedAt
}

// ReleaseCursor returns the last release entry GUID stored for a
// releases feed.
func (t *Tracker) ReleaseCursor(feedURL string) string {
	return t.cursors.Releases[feedURL]
}

// CommitRelease records the newest release entry GUID. Release feeds are
// newest-first, so the adapter hands us the head entry; an unchanged
// GUID is a no-op.
func (t *Tracker) CommitRelease(feedURL, guid string) {
	if guid == "" {
		return
	}
	t.cursors.Releases[feedURL] = guid
}

// newerID compares tweet-style numeric IDs, falling back to string
// comparison when either side isn't numeric.
func newerID(candidate, current string) bool {
	if candidate == "" {
		return false
	}
	if current == "" {
		return true
	}
	a, errA := strconv.ParseUint(candidate, 10, 64)
	b, errB := strconv.ParseUint(current, 10, 64)
	if errA == nil && errB == nil {
		return a > b
	}
	return candidate > current
}

// RequestCount returns today's consumed requests for a source, rolling
// the counters over first if the local day changed.
func (t *Tracker) RequestCount(source string) int {
	t.rollover()
	return t.cursors.Counters.Requests[source]
}

// AddRequests adds consumed requests for a source to today's counter.
// The tracker only stores and compares; enforcing caps is the fetch
// adapter's job.
func (t *Tracker) AddRequests(source string, n int) {
	t.rollover()
	t.cursors.Counters.Requests[source] += n
}

func (t *Tracker) rollover() {
	today := t.now().In(t.loc).Format("2006-01-02")
	if t.cursors.Counters.Date != today {
		t.cursors.Counters = counters{Date: today, Requests: map[string]int{}}
	}
}

// RecentlyEmitted reports whether a URL was surfaced within the trailing
// window. Satisfies dedup.RecentIndex.
func (t *Tracker) RecentlyEmitted(url string) bool {
	at, ok := t.cursors.Recently[url]
	if !ok {
		return false
	}
	return t.now().Sub(at) < t.window
}

// MarkEmitted records that a URL was surfaced this run.
func (t *Tracker) MarkEmitted(url string) {
	t.cursors.Recently[url] = t.now()
}

// PageHash returns the stored content hash for a watched page.
func (t *Tracker) PageHash(url string) string {
	return t.pages.Hashes[url]
}

// PageChanged compares the freshly computed hash against the stored one
// and unconditionally replaces it, whether or not anything downstream
// accepts the change. The very first observation of a page is not a
// change.
func (t *Tracker) PageChanged(url, newHash string) bool {
	old, seen := t.pages.Hashes[url]
	t.pages.Hashes[url] = newHash
	return seen && old != newHash
}

// Save writes both documents atomically (temp file then rename) and
// prunes expired recently-emitted URLs first.
func (t *Tracker) Save() error {
	cutoff := t.now().Add(-t.window)
	for url, at := range t.cursors.Recently {
		if at.Before(cutoff) {
			delete(t.cursors.Recently, url)
		}
	}
	now := t.now().UTC()
	t.cursors.Meta.LastRunAt = &now

	if err := writeDoc(t.cursorPath, &t.cursors); err != nil {
		return err
	}
	return writeDoc(t.pagePath, &t.pages)
}

func writeDoc(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
