// Package app wires the pipeline stages together and runs one
// invocation end to end: collect → dedup → classify → score → select →
// generate → validate → store → report. State is saved only after the
// whole pipeline completed, so an aborted run leaves cursors untouched.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"aidigest/internal/classify"
	"aidigest/internal/config"
	"aidigest/internal/dedup"
	"aidigest/internal/drafts"
	"aidigest/internal/generate"
	"aidigest/internal/item"
	"aidigest/internal/report"
	"aidigest/internal/scrape"
	"aidigest/internal/score"
	"aidigest/internal/sources"
	"aidigest/internal/state"
	"aidigest/internal/stats"
	"aidigest/internal/validate"
)

// Mode selects the run profile. Hourly runs the same pipeline against
// its own state documents with a smaller draft quota.
type Mode string

const (
	ModeDaily  Mode = "daily"
	ModeHourly Mode = "hourly"
)

// App is one configured pipeline run. Single-threaded, single writer of
// its state documents; overlapping invocations are prevented by the
// schedule, not by locking.
type App struct {
	Config     *config.Config
	Log        zerolog.Logger
	Mode       Mode
	Tracker    *state.Tracker
	Drafts     *drafts.Store
	Classifier *classify.Classifier
	Scorer     *score.Scorer
	Generator  generate.Generator
	Validator  *validate.Validator
	Sink       report.Sink
	Extractor  *scrape.Extractor

	Feeds  *sources.FeedFetcher
	Social *sources.SocialFetcher
	Pages  *sources.PageWatcher

	feedBonus map[string]int
	now       func() time.Time
}

// Init finishes wiring after the fields are set.
func (a *App) Init() {
	a.feedBonus = make(map[string]int)
	for _, f := range a.Config.Sources.Feeds {
		a.feedBonus[f.Name] = f.Bonus
	}
	for _, f := range a.Config.Sources.Releases {
		a.feedBonus[f.Name] = f.Bonus
	}
	if a.now == nil {
		a.now = time.Now
	}
}

// Run executes one pipeline invocation.
func (a *App) Run(ctx context.Context) error {
	run := stats.NewRun()

	items, sourcesOK, sourcesTotal := a.collect(ctx, run)
	if sourcesTotal > 0 && sourcesOK == 0 {
		return fmt.Errorf("all %d sources failed", sourcesTotal)
	}
	a.Log.Info().Int("items", len(items)).Int("sources_ok", sourcesOK).Int("sources_total", sourcesTotal).Msg("collection done")

	deduped := dedup.Dedupe(items, a.Tracker)
	run.AddDuplicates(deduped.DuplicatesRemoved)

	ranked := a.classifyAndScore(deduped.Items)
	score.Sort(ranked)

	top := score.TopPerBucket(ranked, a.bucketKs(), a.Config.Buckets.DefaultK)
	candidates := a.selectCandidates(top)
	a.Log.Info().Int("ranked", len(ranked)).Int("candidates", len(candidates)).Msg("selection done")

	accepted, fallbacks := a.generateAndValidate(ctx, candidates, run)

	summary := a.buildSummary(top, accepted, fallbacks, run)
	if a.Sink != nil {
		if err := a.Sink.Send(ctx, summary); err != nil {
			// Degraded, not fatal: drafts and state are already safe.
			a.Log.Error().Err(err).Msg("report sink failed")
		}
	}

	if err := a.Tracker.Save(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	a.Log.Info().Int("accepted", run.DraftsAccepted).Int("duplicates", run.DuplicatesRemoved).Msg("run complete")
	return nil
}

// collect pulls from every configured source group. Each group failing
// entirely counts against sourcesOK; individual feed/account failures
// inside a group are already absorbed by the adapters.
func (a *App) collect(ctx context.Context, run *stats.Run) (all []item.Item, sourcesOK, sourcesTotal int) {
	cfg := a.Config

	if len(cfg.Sources.Feeds) > 0 {
		sourcesTotal++
		items, ok := a.Feeds.FetchFeeds(ctx, cfg.Sources.Feeds)
		run.AddFetched("rss", len(items))
		if ok > 0 {
			sourcesOK++
		} else {
			run.SourceFailed("rss")
		}
		all = append(all, items...)
	}

	if len(cfg.Sources.Releases) > 0 {
		sourcesTotal++
		items, ok := a.Feeds.FetchReleases(ctx, cfg.Sources.Releases)
		run.AddFetched("releases", len(items))
		if ok > 0 {
			sourcesOK++
		} else {
			run.SourceFailed("releases")
		}
		all = append(all, items...)
	}

	if a.Social != nil && len(cfg.Sources.Accounts) > 0 {
		sourcesTotal++
		items, ok, capReached := a.Social.FetchAccounts(ctx, cfg.Sources.Accounts)
		run.AddFetched("x_accounts", len(items))
		run.AccountCapReached = capReached
		// A cap-skipped pass is a deliberate no-op, not a failure.
		if ok > 0 || capReached {
			sourcesOK++
		} else {
			run.SourceFailed("x_accounts")
		}
		all = append(all, items...)
	}

	if a.Social != nil && len(cfg.Sources.Keywords) > 0 {
		sourcesTotal++
		items, ok, capReached := a.Social.FetchSearches(ctx, cfg.Sources.Keywords)
		run.AddFetched("x_search", len(items))
		run.SearchCapReached = capReached
		if ok > 0 || capReached {
			sourcesOK++
		} else {
			run.SourceFailed("x_search")
		}
		all = append(all, items...)
	}

	if len(cfg.Sources.Pages) > 0 {
		sourcesTotal++
		items, ok := a.Pages.Check(ctx, cfg.Sources.Pages)
		run.AddFetched("pages", len(items))
		if ok > 0 {
			sourcesOK++
		} else {
			run.SourceFailed("pages")
		}
		all = append(all, items...)
	}

	return all, sourcesOK, sourcesTotal
}

// classifyAndScore assigns category and score to each item, exactly once.
func (a *App) classifyAndScore(items []item.Item) []item.Item {
	out := make([]item.Item, len(items))
	for i, it := range items {
		res := a.Classifier.Classify(classify.Input{
			Title:       it.Title,
			BodyExcerpt: it.BodyExcerpt,
			URL:         it.URL,
			SourceType:  it.SourceType,
		})
		it.Category = res.Category
		it.Score = a.Scorer.Score(it, res.Delta)
		if it.SourceType.Official() {
			it.Score += a.Config.Scoring.FeedBase + a.feedBonus[it.SourceName]
		}
		out[i] = it
	}
	return out
}

func (a *App) bucketKs() map[item.Category]int {
	ks := make(map[item.Category]int, len(a.Config.Buckets.TopK))
	for cat, k := range a.Config.Buckets.TopK {
		ks[item.Category(cat)] = k
	}
	return ks
}

// draftable are the categories worth turning into posts.
var draftable = map[item.Category]bool{
	item.CategoryPracticalOfficial: true,
	item.CategoryPractical:         true,
	item.CategoryTechnical:         true,
	item.CategoryGeneral:           true,
}

// selectCandidates picks the items to draft, official sources first so
// provider announcements always make the quota, up to the mode's limit.
func (a *App) selectCandidates(top []item.Item) []item.Item {
	quota := a.Config.Limits.DraftsPerRun
	if a.Mode == ModeHourly {
		quota = a.Config.Limits.HourlyDraftsPerRun
	}

	var out []item.Item
	for _, it := range top {
		if len(out) >= quota {
			return out
		}
		if draftable[it.Category] && it.SourceType.Official() {
			out = append(out, it)
		}
	}
	for _, it := range top {
		if len(out) >= quota {
			break
		}
		if draftable[it.Category] && !it.SourceType.Official() {
			out = append(out, it)
		}
	}
	return out
}

// generateAndValidate runs generation and the two-phase gate per
// candidate. Generation failures fall back to a template summary that
// goes to the report only, never to the validator.
func (a *App) generateAndValidate(ctx context.Context, candidates []item.Item, run *stats.Run) ([]drafts.Draft, []report.FallbackNote) {
	var accepted []drafts.Draft
	var fallbacks []report.FallbackNote
	genTimeout := time.Duration(a.Config.Generation.TimeoutSeconds) * time.Second

	for _, it := range candidates {
		it = a.enrich(ctx, it)

		genCtx, cancel := context.WithTimeout(ctx, genTimeout)
		text, err := a.Generator.GeneratePost(genCtx, it)
		cancel()
		if err != nil {
			a.Log.Warn().Err(err).Str("url", it.URL).Msg("generation failed, using template summary")
			run.Fallback()
			fallbacks = append(fallbacks, report.FallbackNote{Item: it, Summary: generate.FallbackSummary(it)})
			a.Tracker.MarkEmitted(it.URL)
			continue
		}

		result := a.Validator.Validate(ctx, text, it.Title)
		if !result.Accepted {
			run.Reject(result.Reason)
			continue
		}

		d, err := a.Drafts.Add(it, text)
		if err != nil {
			a.Log.Error().Err(err).Str("url", it.URL).Msg("draft store write failed")
			continue
		}
		run.Accept()
		a.Tracker.MarkEmitted(it.URL)
		accepted = append(accepted, d)
		a.Log.Info().Str("draft_id", d.ID).Str("title", it.Title).Msg("draft accepted")
	}

	run.JudgeBudgetSpent = a.Validator.BudgetExhausted()
	return accepted, fallbacks
}

// enrich fills a thin body excerpt with scraped article text when an
// extractor is wired. Best effort: scrape failures keep the original.
func (a *App) enrich(ctx context.Context, it item.Item) item.Item {
	if a.Extractor == nil || !it.SourceType.Official() || len(it.BodyExcerpt) > 200 {
		return it
	}
	art, err := a.Extractor.Extract(ctx, it.URL)
	if err != nil {
		a.Log.Debug().Err(err).Str("url", it.URL).Msg("article extraction failed")
		return it
	}
	if len(art.Content) > len(it.BodyExcerpt) {
		it.BodyExcerpt = art.Content
	}
	return it
}

func (a *App) buildSummary(top []item.Item, accepted []drafts.Draft, fallbacks []report.FallbackNote, run *stats.Run) report.Summary {
	byCat := make(map[item.Category][]item.Item)
	var order []item.Category
	for _, it := range top {
		if _, seen := byCat[it.Category]; !seen {
			order = append(order, it.Category)
		}
		byCat[it.Category] = append(byCat[it.Category], it)
	}
	buckets := make([]report.Bucket, 0, len(order))
	for _, cat := range order {
		buckets = append(buckets, report.Bucket{Category: cat, Items: byCat[cat]})
	}

	return report.Summary{
		Date:              a.now().Format("2006-01-02"),
		Buckets:           buckets,
		Drafts:            accepted,
		Fallbacks:         fallbacks,
		ItemsCollected:    run.ItemsCollected,
		DuplicatesRemoved: run.DuplicatesRemoved,
		SourcesFailed:     run.SourcesFailed,
		AccountCapReached: run.AccountCapReached,
		SearchCapReached:  run.SearchCapReached,
		JudgeBudgetSpent:  run.JudgeBudgetSpent,
		Rejections:        run.Rejections,
	}
}
