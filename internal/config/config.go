// Package config loads the pipeline configuration: a YAML document for
// sources, weights and limits, plus secrets from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Feed is one RSS or releases.atom source.
type Feed struct {
	Name  string `yaml:"name"`
	URL   string `yaml:"url"`
	Bonus int    `yaml:"bonus"` // priority bonus added to the feed's items
}

// Page is one watched web page.
type Page struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Config is the YAML document.
type Config struct {
	Timezone string `yaml:"timezone"`

	Sources struct {
		Feeds    []Feed   `yaml:"feeds"`
		Releases []Feed   `yaml:"releases"`
		Accounts []string `yaml:"accounts"`
		Keywords []string `yaml:"keywords"`
		Pages    []Page   `yaml:"pages"`
	} `yaml:"sources"`

	Limits struct {
		AccountRequestsPerDay int `yaml:"account_requests_per_day"`
		SearchRequestsPerDay  int `yaml:"search_requests_per_day"`
		MaxAgeHours           int `yaml:"max_age_hours"`
		DedupWindowHours      int `yaml:"dedup_window_hours"`
		JudgeBudget           int `yaml:"judge_budget"`
		DraftsPerRun          int `yaml:"drafts_per_run"`
		HourlyDraftsPerRun    int `yaml:"hourly_drafts_per_run"`
	} `yaml:"limits"`

	Scoring struct {
		LikeWeight        float64            `yaml:"like_weight"`
		ReshareWeight     float64            `yaml:"reshare_weight"`
		ReplyWeight       float64            `yaml:"reply_weight"`
		FeedBase          int                `yaml:"feed_base"` // base score for feed items
		SourceMultipliers map[string]float64 `yaml:"source_multipliers"`
		CategoryDeltas    map[string]int     `yaml:"category_deltas"`
	} `yaml:"scoring"`

	Buckets struct {
		TopK     map[string]int `yaml:"top_k"`
		DefaultK int            `yaml:"default_k"`
	} `yaml:"buckets"`

	Validation struct {
		MinLength           int `yaml:"min_length"`
		JudgeTimeoutSeconds int `yaml:"judge_timeout_seconds"`
	} `yaml:"validation"`

	Generation struct {
		Model          string `yaml:"model"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"generation"`

	State struct {
		Dir string `yaml:"dir"`
	} `yaml:"state"`
}

// Load reads and validates the YAML config, filling defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.Limits.AccountRequestsPerDay == 0 {
		c.Limits.AccountRequestsPerDay = 80
	}
	if c.Limits.SearchRequestsPerDay == 0 {
		c.Limits.SearchRequestsPerDay = 40
	}
	if c.Limits.MaxAgeHours == 0 {
		c.Limits.MaxAgeHours = 24
	}
	if c.Limits.DedupWindowHours == 0 {
		c.Limits.DedupWindowHours = 24
	}
	if c.Limits.JudgeBudget == 0 {
		c.Limits.JudgeBudget = 10
	}
	if c.Limits.DraftsPerRun == 0 {
		c.Limits.DraftsPerRun = 5
	}
	if c.Limits.HourlyDraftsPerRun == 0 {
		c.Limits.HourlyDraftsPerRun = 3
	}
	if c.Scoring.LikeWeight == 0 {
		c.Scoring.LikeWeight = 1
	}
	if c.Scoring.ReshareWeight == 0 {
		c.Scoring.ReshareWeight = 2
	}
	if c.Scoring.ReplyWeight == 0 {
		c.Scoring.ReplyWeight = 3
	}
	if c.Scoring.FeedBase == 0 {
		c.Scoring.FeedBase = 500
	}
	if c.Buckets.DefaultK == 0 {
		c.Buckets.DefaultK = 5
	}
	if c.Validation.MinLength == 0 {
		c.Validation.MinLength = 50
	}
	if c.Validation.JudgeTimeoutSeconds == 0 {
		c.Validation.JudgeTimeoutSeconds = 30
	}
	if c.Generation.TimeoutSeconds == 0 {
		c.Generation.TimeoutSeconds = 60
	}
	if c.State.Dir == "" {
		c.State.Dir = "data"
	}
}

func (c *Config) validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	total := len(c.Sources.Feeds) + len(c.Sources.Releases) +
		len(c.Sources.Accounts) + len(c.Sources.Keywords) + len(c.Sources.Pages)
	if total == 0 {
		return fmt.Errorf("config has no sources")
	}
	return nil
}

// Location resolves the configured timezone. Validated at load time.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DedupWindow is the trailing cross-run dedup window.
func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.Limits.DedupWindowHours) * time.Hour
}

// MaxAge is the freshness cutoff for incoming items.
func (c *Config) MaxAge() time.Duration {
	return time.Duration(c.Limits.MaxAgeHours) * time.Hour
}

// Secrets come from the environment, never from the YAML file.
type Secrets struct {
	XBearerToken    string `envconfig:"X_BEARER_TOKEN"`
	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`
	SlackWebhookURL string `envconfig:"SLACK_WEBHOOK_URL"`
	Debug           bool   `envconfig:"DEBUG" default:"false"`
}

// LoadSecrets reads secrets from the environment. Which ones are
// required depends on the enabled sources, so presence is checked by the
// caller, not here.
func LoadSecrets() (Secrets, error) {
	var s Secrets
	if err := envconfig.Process("", &s); err != nil {
		return Secrets{}, fmt.Errorf("load secrets: %w", err)
	}
	return s, nil
}
