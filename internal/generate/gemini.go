// Package generate produces candidate post text for selected items. The
// AI path goes through Gemini; when it fails, a deterministic template
// summary keeps the item in the report without ever being treated as an
// AI-authored draft.
package generate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"aidigest/internal/item"
	"aidigest/internal/validate"
)

const defaultModel = "gemini-1.5-flash"

// maxExcerptRunes caps how much article body goes into the prompt.
const maxExcerptRunes = 6000

// Generator produces post text for an item. May fail; the pipeline then
// falls back to a template summary for report purposes only.
type Generator interface {
	GeneratePost(ctx context.Context, it item.Item) (string, error)
}

// Gemini wraps the genai client for both draft generation and the
// Phase 2 semantic review.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini builds the client. Model name is configurable; empty falls
// back to the default.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = defaultModel
	}
	return &Gemini{client: client, model: model}, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() {
	if g.client != nil {
		g.client.Close()
	}
}

const postPromptTemplate = `You write posts for a social media account covering AI engineering news.
Readers are engineers and technical business people.

Write a post draft for the news below.

TITLE: %s
SOURCE: %s
EXCERPT: %s
URL: %s

Requirements:
- Open with one or two sentences stating what is new and why it matters.
- Put the URL right after the opening.
- Then 2-3 numbered sections ("1.", "2.", "3.") with 3-5 bullet points each, bullets use "-".
- Concrete capabilities only. Never use hype words like "revolutionary" or "game-changing".
- Use only product and feature names that appear in the title or excerpt. Do not guess or infer names, versions or dates.
- 600-800 characters total. Plain text, minimal emoji.
- Respond with the post text only, no preamble.`

// GeneratePost asks Gemini for a post draft built strictly from the
// item's title and excerpt.
func (g *Gemini) GeneratePost(ctx context.Context, it item.Item) (string, error) {
	excerpt := clampRunes(collapseWhitespace(it.BodyExcerpt), maxExcerptRunes)
	prompt := fmt.Sprintf(postPromptTemplate, it.Title, it.SourceName, excerpt, it.URL)

	text, err := g.generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate post: %w", err)
	}
	return strings.TrimSpace(text), nil
}

const reviewPromptTemplate = `You fact-check social media post drafts against their source headline.

SOURCE TITLE: %s

DRAFT: %s

Check, in this order:
(a) every proper noun and product name in the draft also appears in the source title
(b) the draft adds no inferred or speculative fact beyond the source title
(c) the draft is consistent with what the source title claims

Answer in exactly this format, nothing else:
VERDICT: PASS or FAIL
REASON: noun_mismatch or speculation or inconsistent or none
EXPLANATION: <one sentence>`

var (
	verdictRe     = regexp.MustCompile(`(?im)^VERDICT\s*:\s*(PASS|FAIL)\s*$`)
	reasonRe      = regexp.MustCompile(`(?im)^REASON\s*:\s*(noun_mismatch|speculation|inconsistent|none)\s*$`)
	explanationRe = regexp.MustCompile(`(?im)^EXPLANATION\s*:\s*(.+)$`)
)

// Review implements validate.Judge: one call per candidate, three checks
// answered in a fixed label format. A malformed response is an error so
// the validator rejects fail-closed instead of guessing.
func (g *Gemini) Review(ctx context.Context, draftText, sourceTitle string) (validate.Verdict, error) {
	prompt := fmt.Sprintf(reviewPromptTemplate, sourceTitle, draftText)

	text, err := g.generate(ctx, prompt)
	if err != nil {
		return validate.Verdict{}, fmt.Errorf("review draft: %w", err)
	}
	return parseVerdict(text)
}

func parseVerdict(text string) (validate.Verdict, error) {
	m := verdictRe.FindStringSubmatch(text)
	if m == nil {
		return validate.Verdict{}, fmt.Errorf("malformed judge response: no verdict in %q", clampRunes(text, 200))
	}
	v := validate.Verdict{Pass: strings.EqualFold(m[1], "PASS")}

	if rm := reasonRe.FindStringSubmatch(text); rm != nil && rm[1] != "none" {
		v.Reason = validate.Reason(rm[1])
	}
	if em := explanationRe.FindStringSubmatch(text); em != nil {
		v.Explanation = strings.TrimSpace(em[1])
	}
	if !v.Pass && v.Reason == "" {
		return validate.Verdict{}, fmt.Errorf("malformed judge response: FAIL without reason")
	}
	return v, nil
}

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty gemini response")
	}
	return fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0]), nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clampRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
