package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidigest/internal/classify"
	"aidigest/internal/config"
	"aidigest/internal/drafts"
	"aidigest/internal/item"
	"aidigest/internal/report"
	"aidigest/internal/score"
	"aidigest/internal/sources"
	"aidigest/internal/state"
	"aidigest/internal/validate"
)

type fakeGenerator struct {
	text string
	err  error
}

func (g *fakeGenerator) GeneratePost(ctx context.Context, it item.Item) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.text, nil
}

type fakeJudge struct {
	verdict validate.Verdict
	calls   int
}

func (j *fakeJudge) Review(ctx context.Context, draftText, sourceTitle string) (validate.Verdict, error) {
	j.calls++
	return j.verdict, nil
}

type captureSink struct {
	summary report.Summary
	sent    bool
}

func (s *captureSink) Send(ctx context.Context, summary report.Summary) error {
	s.summary = summary
	s.sent = true
	return nil
}

func feedServer(t *testing.T, titles ...string) *httptest.Server {
	t.Helper()
	pub := time.Now().UTC().Add(-time.Hour).Format(time.RFC1123Z)
	items := ""
	for i, title := range titles {
		items += fmt.Sprintf(`<item><title>%s</title><link>https://example.com/post-%d</link><pubDate>%s</pubDate></item>`,
			title, i, pub)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>Blog</title>%s</channel></rss>`, items)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const goodDraft = "Claude SDK v2.1 is out with a streaming API. https://example.com/post-0 1. Streaming - token by token output - lower latency"

func newTestApp(t *testing.T, feedURL string, gen *fakeGenerator, judge validate.Judge) (*App, *captureSink, string) {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	cfg.Timezone = "UTC"
	cfg.Sources.Feeds = []config.Feed{{Name: "Blog", URL: feedURL, Bonus: 300}}
	cfg.Limits.MaxAgeHours = 24
	cfg.Limits.DedupWindowHours = 24
	cfg.Limits.JudgeBudget = 10
	cfg.Limits.DraftsPerRun = 5
	cfg.Limits.HourlyDraftsPerRun = 3
	cfg.Scoring.FeedBase = 500
	cfg.Buckets.DefaultK = 5
	cfg.Generation.TimeoutSeconds = 5
	cfg.State.Dir = dir

	log := zerolog.Nop()
	tracker, err := state.Load(filepath.Join(dir, "state.json"), filepath.Join(dir, "pages.json"),
		cfg.DedupWindow(), time.UTC)
	require.NoError(t, err)
	store, err := drafts.Open(filepath.Join(dir, "drafts.json"))
	require.NoError(t, err)
	sink := &captureSink{}

	a := &App{
		Config:     cfg,
		Log:        log,
		Mode:       ModeDaily,
		Tracker:    tracker,
		Drafts:     store,
		Classifier: classify.New(nil),
		Scorer:     score.New(score.DefaultWeights, nil),
		Generator:  gen,
		Validator:  validate.New(judge, 50, cfg.Limits.JudgeBudget, 0, log),
		Sink:       sink,
		Feeds:      sources.NewFeedFetcher(tracker, cfg.MaxAge(), log),
		Pages:      sources.NewPageWatcher(tracker, time.Second, log),
	}
	a.Init()
	return a, sink, dir
}

func TestRunEndToEndAcceptsDraft(t *testing.T) {
	srv := feedServer(t, "Claude SDK v2.1 released with streaming API")
	gen := &fakeGenerator{text: goodDraft}
	judge := &fakeJudge{verdict: validate.Verdict{Pass: true}}
	a, sink, dir := newTestApp(t, srv.URL, gen, judge)

	require.NoError(t, a.Run(context.Background()))

	// Official practical item scored with base and bonus on top of the delta.
	require.True(t, sink.sent)
	require.Len(t, sink.summary.Drafts, 1)
	d := sink.summary.Drafts[0]
	assert.Equal(t, goodDraft, d.PostText)
	assert.Equal(t, item.CategoryPracticalOfficial, d.Item.Category)
	assert.Equal(t, 1000+500+300, d.Item.Score)
	assert.Equal(t, 1, judge.calls)
	assert.Equal(t, 1, sink.summary.ItemsCollected)

	// Draft persisted pending.
	store, err := drafts.Open(filepath.Join(dir, "drafts.json"))
	require.NoError(t, err)
	require.Len(t, store.Pending(), 1)
	assert.Equal(t, drafts.StatusPending, store.Pending()[0].Status)

	// State saved: a fresh run sees the cursor and emits nothing.
	a2, sink2, _ := newTestApp(t, srv.URL, gen, judge)
	tracker2, err := state.Load(filepath.Join(dir, "state.json"), filepath.Join(dir, "pages.json"),
		24*time.Hour, time.UTC)
	require.NoError(t, err)
	a2.Tracker = tracker2
	a2.Feeds = sources.NewFeedFetcher(tracker2, 24*time.Hour, zerolog.Nop())
	require.NoError(t, a2.Run(context.Background()))
	assert.Empty(t, sink2.summary.Drafts)
	assert.Zero(t, sink2.summary.ItemsCollected)
}

func TestRunRejectsMetaMessageWithoutJudgeCall(t *testing.T) {
	srv := feedServer(t, "Claude SDK v2.1 released with streaming API")
	gen := &fakeGenerator{text: "I'm sorry, but I cannot generate a post because there is insufficient information in the source."}
	judge := &fakeJudge{verdict: validate.Verdict{Pass: true}}
	a, sink, dir := newTestApp(t, srv.URL, gen, judge)

	require.NoError(t, a.Run(context.Background()))

	assert.Empty(t, sink.summary.Drafts)
	assert.Equal(t, 1, sink.summary.Rejections[validate.ReasonMetaMessage])
	assert.Zero(t, judge.calls)

	store, err := drafts.Open(filepath.Join(dir, "drafts.json"))
	require.NoError(t, err)
	assert.Empty(t, store.All())
}

func TestRunGenerationFailureFallsBack(t *testing.T) {
	srv := feedServer(t, "Claude SDK v2.1 released with streaming API")
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	judge := &fakeJudge{verdict: validate.Verdict{Pass: true}}
	a, sink, _ := newTestApp(t, srv.URL, gen, judge)

	require.NoError(t, a.Run(context.Background()))

	// Template summary in the report, never validated, no draft stored.
	assert.Empty(t, sink.summary.Drafts)
	require.Len(t, sink.summary.Fallbacks, 1)
	assert.Contains(t, sink.summary.Fallbacks[0].Summary, "Official announcement.")
	assert.Zero(t, judge.calls)
}

func TestRunJudgeRejectDropsDraft(t *testing.T) {
	srv := feedServer(t, "Claude SDK v2.1 released with streaming API")
	gen := &fakeGenerator{text: goodDraft}
	judge := &fakeJudge{verdict: validate.Verdict{Pass: false, Reason: validate.ReasonNounMismatch}}
	a, sink, _ := newTestApp(t, srv.URL, gen, judge)

	require.NoError(t, a.Run(context.Background()))
	assert.Empty(t, sink.summary.Drafts)
	assert.Equal(t, 1, sink.summary.Rejections[validate.ReasonNounMismatch])
}

func TestRunAllSourcesFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	gen := &fakeGenerator{text: goodDraft}
	judge := &fakeJudge{verdict: validate.Verdict{Pass: true}}
	a, _, _ := newTestApp(t, srv.URL, gen, judge)

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sources failed")
}

func TestRunSocialOnlyAllFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	gen := &fakeGenerator{text: goodDraft}
	judge := &fakeJudge{verdict: validate.Verdict{Pass: true}}
	a, _, _ := newTestApp(t, srv.URL, gen, judge)
	a.Config.Sources.Feeds = nil
	a.Config.Sources.Accounts = []string{"OpenAI"}
	a.Config.Sources.Keywords = []string{"ai agents"}
	a.Social = sources.NewSocialFetcher(sources.NewXClient("token", srv.URL, time.Second),
		a.Tracker, 10, 10, zerolog.Nop())

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sources failed")
}

func TestRunHourlyQuota(t *testing.T) {
	srv := feedServer(t,
		"SDK v1.1 released with new API",
		"SDK v1.2 released with new API",
		"SDK v1.3 released with new API",
		"SDK v1.4 released with new API",
	)
	gen := &fakeGenerator{text: goodDraft}
	judge := &fakeJudge{verdict: validate.Verdict{Pass: true}}
	a, sink, _ := newTestApp(t, srv.URL, gen, judge)
	a.Mode = ModeHourly
	a.Config.Limits.HourlyDraftsPerRun = 2

	require.NoError(t, a.Run(context.Background()))
	assert.Len(t, sink.summary.Drafts, 2)
}

func TestSelectCandidatesOfficialFirst(t *testing.T) {
	a := &App{Config: &config.Config{}}
	a.Config.Limits.DraftsPerRun = 2
	a.Mode = ModeDaily

	top := []item.Item{
		{ID: "social", SourceType: item.SourceSocialAccount, Category: item.CategoryPractical, Score: 9000},
		{ID: "rss1", SourceType: item.SourceRSS, Category: item.CategoryPracticalOfficial, Score: 1500},
		{ID: "marketing", SourceType: item.SourceRSS, Category: item.CategoryMarketing, Score: 1200},
		{ID: "rss2", SourceType: item.SourceRSS, Category: item.CategoryPractical, Score: 1100},
	}

	got := a.selectCandidates(top)
	require.Len(t, got, 2)
	// Official items fill the quota before higher-scored social ones, and
	// sunk categories never qualify.
	assert.Equal(t, "rss1", got[0].ID)
	assert.Equal(t, "rss2", got[1].ID)
}
