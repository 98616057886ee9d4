package sources

import (
	"context"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"aidigest/internal/config"
	"aidigest/internal/item"
	"aidigest/internal/state"
)

// FeedFetcher pulls RSS feeds and GitHub releases.atom feeds.
type FeedFetcher struct {
	parser *gofeed.Parser
	state  *state.Tracker
	maxAge time.Duration
	log    zerolog.Logger
}

// NewFeedFetcher builds the adapter.
func NewFeedFetcher(st *state.Tracker, maxAge time.Duration, log zerolog.Logger) *FeedFetcher {
	return &FeedFetcher{
		parser: gofeed.NewParser(),
		state:  st,
		maxAge: maxAge,
		log:    log,
	}
}

// FetchFeeds collects new entries from RSS feeds, skipping anything at
// or before the stored published-at cursor. Parse failures skip the feed
// and the run continues.
func (f *FeedFetcher) FetchFeeds(ctx context.Context, feeds []config.Feed) ([]item.Item, int) {
	var items []item.Item
	ok := 0

	for _, fc := range feeds {
		feed, err := f.parser.ParseURLWithContext(fc.URL, ctx)
		if err != nil {
			f.log.Warn().Err(&FetchError{Source: fc.Name, Err: err}).Str("url", fc.URL).Msg("feed fetch failed, skipping")
			continue
		}
		ok++

		cursor := f.state.FeedCursor(fc.URL)
		newest := cursor
		fetched := 0

		for _, entry := range feed.Items {
			published := entryPublished(entry)
			if published.IsZero() {
				continue
			}
			iso := published.UTC().Format(time.RFC3339)
			if cursor != "" && iso <= cursor {
				continue
			}
			if f.maxAge > 0 && time.Since(published) > f.maxAge {
				continue
			}

			it := item.New(item.SourceRSS, "", entry.Link, entry.Title, entry.Description, fc.Name, published)
			items = append(items, it)
			fetched++
			if iso > newest {
				newest = iso
			}
		}

		if newest != cursor {
			f.state.CommitFeed(fc.URL, newest)
		}
		f.log.Info().Str("feed", fc.Name).Int("new", fetched).Msg("feed fetched")
	}

	return items, ok
}

// FetchReleases collects new entries from releases.atom feeds. Entries
// are newest-first; we take entries until the previously stored GUID and
// commit the new head GUID as the cursor.
func (f *FeedFetcher) FetchReleases(ctx context.Context, feeds []config.Feed) ([]item.Item, int) {
	var items []item.Item
	ok := 0

	for _, fc := range feeds {
		feed, err := f.parser.ParseURLWithContext(fc.URL, ctx)
		if err != nil {
			f.log.Warn().Err(&FetchError{Source: fc.Name, Err: err}).Str("url", fc.URL).Msg("releases fetch failed, skipping")
			continue
		}
		ok++
		if len(feed.Items) == 0 {
			continue
		}

		cursor := f.state.ReleaseCursor(fc.URL)
		fetched := 0

		for _, entry := range feed.Items {
			if entry.GUID != "" && entry.GUID == cursor {
				break
			}
			published := entryPublished(entry)
			if published.IsZero() {
				published = time.Now().UTC()
			}
			if f.maxAge > 0 && time.Since(published) > f.maxAge {
				break
			}

			it := item.New(item.SourceRepoRelease, "", entry.Link, entry.Title, entry.Description, fc.Name, published)
			items = append(items, it)
			fetched++
		}

		f.state.CommitRelease(fc.URL, feed.Items[0].GUID)
		f.log.Info().Str("releases", fc.Name).Int("new", fetched).Msg("releases fetched")
	}

	return items, ok
}

func entryPublished(entry *gofeed.Item) time.Time {
	if entry.PublishedParsed != nil {
		return *entry.PublishedParsed
	}
	if entry.UpdatedParsed != nil {
		return *entry.UpdatedParsed
	}
	return time.Time{}
}
