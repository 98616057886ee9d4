package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"aidigest/internal/item"
	"aidigest/internal/state"
)

const xAPIBase = "https://api.twitter.com/2"

// XClient talks to the X (Twitter) API v2 with a bearer token.
type XClient struct {
	bearer string
	base   string
	http   *http.Client
}

// NewXClient builds the client. baseURL overrides the API host for
// tests; empty uses the real one.
func NewXClient(bearerToken, baseURL string, timeout time.Duration) *XClient {
	if baseURL == "" {
		baseURL = xAPIBase
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &XClient{
		bearer: bearerToken,
		base:   baseURL,
		http:   &http.Client{Timeout: timeout},
	}
}

type tweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	CreatedAt     string `json:"created_at"`
	PublicMetrics struct {
		LikeCount    int `json:"like_count"`
		RetweetCount int `json:"retweet_count"`
		ReplyCount   int `json:"reply_count"`
	} `json:"public_metrics"`
}

type tweetsResponse struct {
	Data []tweet `json:"data"`
}

type userResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// UserID resolves a username to its user ID.
func (c *XClient) UserID(ctx context.Context, username string) (string, error) {
	var out userResponse
	if err := c.get(ctx, "/users/by/username/"+url.PathEscape(username), nil, &out); err != nil {
		return "", err
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("user %s not found", username)
	}
	return out.Data.ID, nil
}

// UserTweets fetches a user's tweets strictly newer than sinceID. On the
// first run (empty sinceID) it asks for the trailing 24 hours instead.
func (c *XClient) UserTweets(ctx context.Context, userID, sinceID string, maxResults int) ([]tweet, error) {
	params := url.Values{}
	params.Set("max_results", strconv.Itoa(min(maxResults, 100)))
	params.Set("tweet.fields", "created_at,public_metrics")
	if sinceID != "" {
		params.Set("since_id", sinceID)
	} else {
		params.Set("start_time", time.Now().UTC().Add(-24*time.Hour).Format(time.RFC3339))
	}

	var out tweetsResponse
	if err := c.get(ctx, "/users/"+userID+"/tweets", params, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// SearchRecent runs a recent-search query strictly newer than sinceID.
func (c *XClient) SearchRecent(ctx context.Context, query, sinceID string, maxResults int) ([]tweet, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("max_results", strconv.Itoa(min(maxResults, 100)))
	params.Set("tweet.fields", "created_at,public_metrics")
	if sinceID != "" {
		params.Set("since_id", sinceID)
	} else {
		params.Set("start_time", time.Now().UTC().Add(-24*time.Hour).Format(time.RFC3339))
	}

	var out tweetsResponse
	if err := c.get(ctx, "/tweets/search/recent", params, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *XClient) get(ctx context.Context, path string, params url.Values, v any) error {
	u := c.base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("x api status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// SocialFetcher collects tweets from monitored accounts and keyword
// searches, respecting the daily request caps stored in the tracker.
type SocialFetcher struct {
	client     *XClient
	state      *state.Tracker
	accountCap int
	searchCap  int
	log        zerolog.Logger
}

// NewSocialFetcher builds the adapter.
func NewSocialFetcher(client *XClient, st *state.Tracker, accountCap, searchCap int, log zerolog.Logger) *SocialFetcher {
	return &SocialFetcher{
		client:     client,
		state:      st,
		accountCap: accountCap,
		searchCap:  searchCap,
		log:        log,
	}
}

// FetchAccounts pulls new tweets from each monitored account. Returns
// the items, how many accounts fetched successfully and whether the
// daily cap cut the pass short.
func (f *SocialFetcher) FetchAccounts(ctx context.Context, accounts []string) (items []item.Item, ok int, capReached bool) {
	for _, username := range accounts {
		if f.state.RequestCount("x_accounts") >= f.accountCap {
			f.log.Warn().Int("cap", f.accountCap).Msg("account request cap reached")
			return items, ok, true
		}

		userID, err := f.client.UserID(ctx, username)
		f.state.AddRequests("x_accounts", 1)
		if err != nil {
			f.log.Warn().Err(&FetchError{Source: username, Err: err}).Msg("account lookup failed, skipping")
			continue
		}

		since := f.state.AccountCursor(username)
		tweets, err := f.client.UserTweets(ctx, userID, since, 10)
		f.state.AddRequests("x_accounts", 1)
		if err != nil {
			f.log.Warn().Err(&FetchError{Source: username, Err: err}).Msg("account fetch failed, skipping")
			continue
		}
		ok++
		if len(tweets) == 0 {
			continue
		}

		maxID := since
		for _, t := range tweets {
			items = append(items, tweetItem(t, item.SourceSocialAccount, username,
				fmt.Sprintf("https://x.com/%s/status/%s", username, t.ID)))
			if idGreater(t.ID, maxID) {
				maxID = t.ID
			}
		}
		f.state.CommitAccount(username, userID, maxID)
	}
	return items, ok, false
}

// FetchSearches runs each keyword search and returns the new tweets,
// how many searches succeeded and whether the cap cut the pass short.
func (f *SocialFetcher) FetchSearches(ctx context.Context, keywords []string) (items []item.Item, ok int, capReached bool) {
	for _, kw := range keywords {
		if f.state.RequestCount("x_search") >= f.searchCap {
			f.log.Warn().Int("cap", f.searchCap).Msg("search request cap reached")
			return items, ok, true
		}

		since := f.state.KeywordCursor(kw)
		tweets, err := f.client.SearchRecent(ctx, kw, since, 10)
		f.state.AddRequests("x_search", 1)
		if err != nil {
			f.log.Warn().Err(&FetchError{Source: kw, Err: err}).Msg("search failed, skipping")
			continue
		}
		ok++
		if len(tweets) == 0 {
			continue
		}

		maxID := since
		for _, t := range tweets {
			items = append(items, tweetItem(t, item.SourceSocialSearch, kw,
				"https://x.com/i/web/status/"+t.ID))
			if idGreater(t.ID, maxID) {
				maxID = t.ID
			}
		}
		f.state.CommitKeyword(kw, maxID)
	}
	return items, ok, false
}

func tweetItem(t tweet, source item.SourceType, sourceName, link string) item.Item {
	published, err := time.Parse(time.RFC3339, t.CreatedAt)
	if err != nil {
		published = time.Now().UTC()
	}
	title := t.Text
	if len([]rune(title)) > 100 {
		title = string([]rune(title)[:100])
	}
	it := item.New(source, t.ID, link, title, t.Text, sourceName, published)
	it.Engagement = &item.Engagement{
		Likes:    t.PublicMetrics.LikeCount,
		Reshares: t.PublicMetrics.RetweetCount,
		Replies:  t.PublicMetrics.ReplyCount,
	}
	return it
}

func idGreater(a, b string) bool {
	if b == "" {
		return true
	}
	ai, errA := strconv.ParseUint(a, 10, 64)
	bi, errB := strconv.ParseUint(b, 10, 64)
	if errA == nil && errB == nil {
		return ai > bi
	}
	return a > b
}
