package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"aidigest/internal/app"
	"aidigest/internal/classify"
	"aidigest/internal/config"
	"aidigest/internal/drafts"
	"aidigest/internal/generate"
	"aidigest/internal/item"
	"aidigest/internal/logging"
	"aidigest/internal/report"
	"aidigest/internal/score"
	"aidigest/internal/scrape"
	"aidigest/internal/sources"
	"aidigest/internal/state"
	"aidigest/internal/validate"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config")
	mode := flag.String("mode", "daily", "run mode: daily or hourly")
	flag.Parse()

	if err := run(*configPath, app.Mode(*mode)); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath string, mode app.Mode) error {
	if mode != app.ModeDaily && mode != app.ModeHourly {
		return fmt.Errorf("unknown mode %q, want daily or hourly", mode)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}
	log := logging.New(secrets.Debug)
	log.Info().Str("mode", string(mode)).Str("config", configPath).Msg("starting run")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.State.Dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	// Each mode keeps its own cursors so hourly runs never advance the
	// daily run's position. The draft store is shared.
	cursorPath := filepath.Join(cfg.State.Dir, string(mode)+"_state.json")
	pagePath := filepath.Join(cfg.State.Dir, string(mode)+"_pages.json")
	tracker, err := state.Load(cursorPath, pagePath, cfg.DedupWindow(), cfg.Location())
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	store, err := drafts.Open(filepath.Join(cfg.State.Dir, "drafts.json"))
	if err != nil {
		return fmt.Errorf("open draft store: %w", err)
	}

	if secrets.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is not set")
	}
	gem, err := generate.NewGemini(ctx, secrets.GeminiAPIKey, cfg.Generation.Model)
	if err != nil {
		return fmt.Errorf("init generator: %w", err)
	}
	defer gem.Close()

	validator := validate.New(gem, cfg.Validation.MinLength, cfg.Limits.JudgeBudget,
		time.Duration(cfg.Validation.JudgeTimeoutSeconds)*time.Second, log)

	var sink report.Sink
	if secrets.SlackWebhookURL != "" {
		sink = report.NewSlackSink(secrets.SlackWebhookURL, 10*time.Second, log)
	} else {
		log.Warn().Msg("SLACK_WEBHOOK_URL not set, report goes to the log only")
	}

	var social *sources.SocialFetcher
	if len(cfg.Sources.Accounts) > 0 || len(cfg.Sources.Keywords) > 0 {
		if secrets.XBearerToken == "" {
			log.Warn().Msg("X_BEARER_TOKEN not set, skipping social sources")
		} else {
			client := sources.NewXClient(secrets.XBearerToken, "", 15*time.Second)
			social = sources.NewSocialFetcher(client, tracker,
				cfg.Limits.AccountRequestsPerDay, cfg.Limits.SearchRequestsPerDay, log)
		}
	}

	a := &app.App{
		Config:     cfg,
		Log:        log,
		Mode:       mode,
		Tracker:    tracker,
		Drafts:     store,
		Classifier: classify.New(categoryDeltas(cfg)),
		Scorer:     score.New(weights(cfg), sourceMultipliers(cfg)),
		Generator:  gem,
		Validator:  validator,
		Sink:       sink,
		Extractor:  scrape.New(15 * time.Second),
		Feeds:      sources.NewFeedFetcher(tracker, cfg.MaxAge(), log),
		Social:     social,
		Pages:      sources.NewPageWatcher(tracker, 20*time.Second, log),
	}
	a.Init()

	return a.Run(ctx)
}

func weights(cfg *config.Config) score.Weights {
	return score.Weights{
		Like:    cfg.Scoring.LikeWeight,
		Reshare: cfg.Scoring.ReshareWeight,
		Reply:   cfg.Scoring.ReplyWeight,
	}
}

func sourceMultipliers(cfg *config.Config) map[item.SourceType]float64 {
	out := make(map[item.SourceType]float64, len(cfg.Scoring.SourceMultipliers))
	for src, m := range cfg.Scoring.SourceMultipliers {
		out[item.SourceType(src)] = m
	}
	return out
}

func categoryDeltas(cfg *config.Config) map[item.Category]int {
	out := make(map[item.Category]int, len(cfg.Scoring.CategoryDeltas))
	for cat, d := range cfg.Scoring.CategoryDeltas {
		out[item.Category(cat)] = d
	}
	return out
}
