package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"aidigest/internal/retry"
)

// SlackSink posts the run summary to an incoming-webhook URL as Block
// Kit blocks, one section per draft.
type SlackSink struct {
	webhookURL string
	http       *http.Client
	log        zerolog.Logger
}

// NewSlackSink builds the sink.
func NewSlackSink(webhookURL string, timeout time.Duration, log zerolog.Logger) *SlackSink {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &SlackSink{
		webhookURL: webhookURL,
		http:       &http.Client{Timeout: timeout},
		log:        log,
	}
}

type block map[string]any

// Send renders and posts the summary with bounded retries. The caller's
// context cancels both the in-flight request and the retry waits.
func (s *SlackSink) Send(ctx context.Context, summary Summary) error {
	payload := map[string]any{"blocks": buildBlocks(summary)}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	cfg := retry.Config{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true}
	return retry.Do(ctx, cfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build slack request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.http.Do(req)
		if err != nil {
			return fmt.Errorf("post to slack: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			return fmt.Errorf("slack status %d: %s", resp.StatusCode, msg)
		}
		s.log.Info().Int("drafts", len(summary.Drafts)).Msg("report posted to slack")
		return nil
	})
}

func buildBlocks(summary Summary) []block {
	blocks := []block{
		{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": "Post drafts - " + summary.Date},
		},
	}

	for i, d := range summary.Drafts {
		blocks = append(blocks, block{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("```[draft %d] %s\n\n%s```", i+1, d.Item.Title, d.PostText),
			},
		})
		if i < len(summary.Drafts)-1 {
			blocks = append(blocks, block{"type": "divider"})
		}
	}

	for _, f := range summary.Fallbacks {
		blocks = append(blocks, block{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("_generation failed, template summary:_\n```%s```", f.Summary),
			},
		})
	}

	for _, b := range summary.Buckets {
		if len(b.Items) == 0 {
			continue
		}
		text := fmt.Sprintf("*%s*", b.Category)
		for _, it := range b.Items {
			text += fmt.Sprintf("\n• <%s|%s> (%d)", it.URL, it.Title, it.Score)
		}
		blocks = append(blocks, block{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": text},
		})
	}

	blocks = append(blocks, block{
		"type": "context",
		"elements": []any{
			map[string]any{"type": "mrkdwn", "text": statsLine(summary)},
		},
	})
	return blocks
}

func statsLine(summary Summary) string {
	text := fmt.Sprintf("collected %d | duplicates removed %d | drafts %d",
		summary.ItemsCollected, summary.DuplicatesRemoved, len(summary.Drafts))
	for reason, n := range summary.Rejections {
		text += fmt.Sprintf(" | rejected %s: %d", reason, n)
	}
	if summary.AccountCapReached || summary.SearchCapReached {
		text += " | request cap reached"
	}
	if summary.JudgeBudgetSpent {
		text += " | judge budget spent"
	}
	for _, src := range summary.SourcesFailed {
		text += " | source failed: " + src
	}
	return text
}
