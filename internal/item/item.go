// Package item holds the canonical content item every source is
// normalized into before the pipeline runs.
package item

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
)

// SourceType tells where an item came from.
type SourceType string

const (
	SourceRSS           SourceType = "rss"
	SourceRepoRelease   SourceType = "repo_release"
	SourcePageWatch     SourceType = "page_watch"
	SourceSocialAccount SourceType = "social_account"
	SourceSocialSearch  SourceType = "social_search"
)

// Priority returns the rank used when collapsing same-URL duplicates.
// Lower is better: official feeds win over social copies of the same link.
func (s SourceType) Priority() int {
	switch s {
	case SourceRSS:
		return 0
	case SourceRepoRelease:
		return 1
	case SourcePageWatch:
		return 2
	case SourceSocialAccount:
		return 3
	case SourceSocialSearch:
		return 4
	default:
		return 5
	}
}

// Official reports whether the source is an official feed (RSS or
// repository releases) as opposed to social chatter.
func (s SourceType) Official() bool {
	return s == SourceRSS || s == SourceRepoRelease
}

// Category is the single classification outcome assigned to an item.
type Category string

const (
	CategoryNonEnglish        Category = "NON_ENGLISH"
	CategoryJapanOrigin       Category = "JAPAN_ORIGIN"
	CategoryExcluded          Category = "EXCLUDED"
	CategoryLowCredibility    Category = "LOW_CREDIBILITY"
	CategoryPersonalUsage     Category = "PERSONAL_USAGE"
	CategoryMarketing         Category = "MARKETING"
	CategoryPracticalOfficial Category = "PRACTICAL_OFFICIAL"
	CategoryPractical         Category = "PRACTICAL"
	CategoryTechnical         Category = "TECHNICAL"
	CategoryGeneral           Category = "GENERAL"
)

// Engagement carries social metrics. Only SOCIAL_* sources have them.
type Engagement struct {
	Likes    int `json:"likes"`
	Reshares int `json:"reshares"`
	Replies  int `json:"replies"`
}

// Item is the canonical unit of content flowing through the pipeline.
// After normalization it is treated as immutable except for Category and
// Score, each written exactly once per run.
type Item struct {
	ID          string      `json:"id"`
	URL         string      `json:"url"`
	Title       string      `json:"title"`
	BodyExcerpt string      `json:"body_excerpt,omitempty"`
	SourceType  SourceType  `json:"source_type"`
	SourceName  string      `json:"source_name,omitempty"`
	PublishedAt time.Time   `json:"published_at"`
	Engagement  *Engagement `json:"engagement,omitempty"`

	Category Category `json:"category,omitempty"`
	Score    int      `json:"score"`
}

// NormalizeURL canonicalizes a link for deduplication: lowercase scheme
// and host, fragment dropped, tracking query params dropped, trailing
// slash trimmed. twitter.com links are rewritten to x.com so the same
// post never surfaces twice under both hosts.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Host = strings.TrimPrefix(u.Host, "www.")
	if u.Host == "twitter.com" {
		u.Host = "x.com"
	}
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if strings.HasPrefix(key, "utm_") || key == "ref" || key == "fbclid" {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// DeriveID builds a stable identifier from a normalized URL for sources
// that don't hand out their own IDs.
func DeriveID(normalizedURL string) string {
	h := sha256.Sum256([]byte(normalizedURL))
	return hex.EncodeToString(h[:])[:16]
}

// New normalizes a raw record into an Item. sourceID may be empty, in
// which case the ID is derived from the URL.
func New(source SourceType, sourceID, rawURL, title, excerpt, sourceName string, published time.Time) Item {
	u := NormalizeURL(rawURL)
	id := sourceID
	if id == "" {
		id = DeriveID(u)
	}
	return Item{
		ID:          id,
		URL:         u,
		Title:       strings.TrimSpace(title),
		BodyExcerpt: strings.TrimSpace(excerpt),
		SourceType:  source,
		SourceName:  sourceName,
		PublishedAt: published,
	}
}
