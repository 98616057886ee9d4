package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidigest/internal/item"
)

func xServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	created := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	requests := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/users/by/username/", func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		username := strings.TrimPrefix(r.URL.Path, "/users/by/username/")
		fmt.Fprintf(w, `{"data":{"id":"id-%s"}}`, username)
	})
	mux.HandleFunc("/users/id-OpenAI/tweets", func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Query().Get("since_id") == "200" {
			fmt.Fprint(w, `{"data":[]}`)
			return
		}
		fmt.Fprintf(w, `{"data":[
			{"id":"200","text":"Model v2 released","created_at":"%s","public_metrics":{"like_count":50,"retweet_count":10,"reply_count":5}},
			{"id":"100","text":"Older post","created_at":"%s","public_metrics":{"like_count":1,"retweet_count":0,"reply_count":0}}
		]}`, created, created)
	})
	mux.HandleFunc("/tweets/search/recent", func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprintf(w, `{"data":[{"id":"300","text":"agents in production","created_at":"%s","public_metrics":{"like_count":7,"retweet_count":2,"reply_count":1}}]}`, created)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestFetchAccounts(t *testing.T) {
	srv, _ := xServer(t)
	tr := testTracker(t)
	client := NewXClient("token", srv.URL, time.Second)
	f := NewSocialFetcher(client, tr, 10, 10, zerolog.Nop())

	items, ok, capReached := f.FetchAccounts(context.Background(), []string{"OpenAI"})
	assert.False(t, capReached)
	assert.Equal(t, 1, ok)
	require.Len(t, items, 2)

	assert.Equal(t, "200", items[0].ID)
	assert.Equal(t, item.SourceSocialAccount, items[0].SourceType)
	assert.Equal(t, "https://x.com/OpenAI/status/200", items[0].URL)
	require.NotNil(t, items[0].Engagement)
	assert.Equal(t, 50, items[0].Engagement.Likes)
	assert.Equal(t, 10, items[0].Engagement.Reshares)
	assert.Equal(t, 5, items[0].Engagement.Replies)

	// Cursor moved to the newest ID; the request counter recorded both calls.
	assert.Equal(t, "200", tr.AccountCursor("OpenAI"))
	assert.Equal(t, 2, tr.RequestCount("x_accounts"))

	// Next pass sends since_id and gets nothing, but the fetch itself
	// still counts as a success.
	items, ok, _ = f.FetchAccounts(context.Background(), []string{"OpenAI"})
	assert.Empty(t, items)
	assert.Equal(t, 1, ok)
}

func TestFetchAccountsAllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewSocialFetcher(NewXClient("token", srv.URL, time.Second), testTracker(t), 10, 10, zerolog.Nop())
	items, ok, capReached := f.FetchAccounts(context.Background(), []string{"OpenAI", "AnthropicAI"})
	assert.Empty(t, items)
	assert.Zero(t, ok)
	assert.False(t, capReached)
}

func TestFetchSearchesAllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewSocialFetcher(NewXClient("token", srv.URL, time.Second), testTracker(t), 10, 10, zerolog.Nop())
	items, ok, capReached := f.FetchSearches(context.Background(), []string{"ai agents"})
	assert.Empty(t, items)
	assert.Zero(t, ok)
	assert.False(t, capReached)
}

func TestFetchAccountsCap(t *testing.T) {
	srv, requests := xServer(t)
	tr := testTracker(t)
	tr.AddRequests("x_accounts", 10)
	f := NewSocialFetcher(NewXClient("token", srv.URL, time.Second), tr, 10, 10, zerolog.Nop())

	items, ok, capReached := f.FetchAccounts(context.Background(), []string{"OpenAI"})
	assert.True(t, capReached)
	assert.Zero(t, ok)
	assert.Empty(t, items)
	assert.Zero(t, *requests)
}

func TestFetchSearches(t *testing.T) {
	srv, _ := xServer(t)
	tr := testTracker(t)
	f := NewSocialFetcher(NewXClient("token", srv.URL, time.Second), tr, 10, 10, zerolog.Nop())

	items, ok, capReached := f.FetchSearches(context.Background(), []string{"ai agents"})
	assert.False(t, capReached)
	assert.Equal(t, 1, ok)
	require.Len(t, items, 1)
	assert.Equal(t, item.SourceSocialSearch, items[0].SourceType)
	assert.Equal(t, "https://x.com/i/web/status/300", items[0].URL)
	assert.Equal(t, "300", tr.KeywordCursor("ai agents"))
	assert.Equal(t, 1, tr.RequestCount("x_search"))
}

func TestXClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"title":"Too Many Requests"}`)
	}))
	defer srv.Close()

	client := NewXClient("token", srv.URL, time.Second)
	_, err := client.UserID(context.Background(), "OpenAI")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestIDGreater(t *testing.T) {
	assert.True(t, idGreater("1000", "999"))
	assert.False(t, idGreater("999", "1000"))
	assert.True(t, idGreater("1", ""))
}
