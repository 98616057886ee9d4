// Package validate gates generated drafts behind a two-phase check:
// fast pattern rules first, then a budget-limited semantic-consistency
// review against the source title. Every rejection carries a reason code
// so operators can tell "failed review" from "not reviewed".
package validate

import (
	"context"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Reason is a rejection reason code.
type Reason string

const (
	// Phase 1 content reasons, in evaluation order.
	ReasonMetaMessage Reason = "meta_message"
	ReasonLawsuit     Reason = "lawsuit"
	ReasonPolitical   Reason = "political"
	ReasonTooShort    Reason = "too_short"

	// Phase 2 content reasons.
	ReasonNounMismatch Reason = "noun_mismatch"
	ReasonSpeculation  Reason = "speculation"
	ReasonInconsistent Reason = "inconsistent"

	// Infra reasons, distinct from content failures.
	ReasonJudgeError      Reason = "judge_error"
	ReasonBudgetExhausted Reason = "budget_exhausted"
)

// Result is the outcome for one candidate draft.
type Result struct {
	Accepted bool
	Reason   Reason
}

// DefaultMinLength is the minimum draft length in runes.
const DefaultMinLength = 50

// Phase 1 pattern families. The generator refusing or hedging, topics we
// never post about, and drafts too short to carry content.
var (
	metaMessageRe = regexp.MustCompile(`(?i)cannot generate|can't generate|unable to generate|cannot create|unable to provide|insufficient information|not enough information|not suitable for a post|as an ai\b|i apologi[sz]e|i'm sorry, but`)

	lawsuitRe = regexp.MustCompile(`(?i)\blawsuit\b|\bsued?\b|\blitigation\b|\bplaintiff\b|\bdefendant\b|class action|legal action|damages claim`)

	politicalRe = regexp.MustCompile(`(?i)executive order|political(ly)? controvers\w*|administration('s)? criticism|government crackdown|\belection\b|partisan\b|congress (condemn|denounc)\w*|regulator\w* backlash`)
)

// phase1Check pairs a reason with its predicate; slice order is the
// evaluation order and the first match wins.
type phase1Check struct {
	reason Reason
	match  func(v *Validator, draft, title string) bool
}

var phase1Checks = []phase1Check{
	{ReasonMetaMessage, func(_ *Validator, draft, _ string) bool {
		return metaMessageRe.MatchString(draft)
	}},
	{ReasonLawsuit, func(_ *Validator, draft, title string) bool {
		return lawsuitRe.MatchString(title + " " + draft)
	}},
	{ReasonPolitical, func(_ *Validator, draft, title string) bool {
		return politicalRe.MatchString(title + " " + draft)
	}},
	{ReasonTooShort, func(v *Validator, draft, _ string) bool {
		return utf8.RuneCountInString(draft) < v.minLength
	}},
}

// Verdict is the semantic judge's answer for one draft.
type Verdict struct {
	Pass        bool
	Reason      Reason // noun_mismatch, speculation or inconsistent when Pass is false
	Explanation string
}

// Judge runs the semantic-consistency review. One external call per
// candidate; any error is treated as a fail-closed rejection upstream.
type Judge interface {
	Review(ctx context.Context, draftText, sourceTitle string) (Verdict, error)
}

// Validator is the two-phase gate. It carries the per-run Phase 2 call
// budget, so one instance serves exactly one run.
type Validator struct {
	judge     Judge
	minLength int
	budget    int
	used      int
	timeout   time.Duration
	log       zerolog.Logger
}

// New builds a validator for one run. budget caps Phase 2 calls
// regardless of how many candidates pass Phase 1; timeout bounds each
// judge call.
func New(judge Judge, minLength, budget int, timeout time.Duration, log zerolog.Logger) *Validator {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	return &Validator{
		judge:     judge,
		minLength: minLength,
		budget:    budget,
		timeout:   timeout,
		log:       log,
	}
}

// CheckPhase1 runs the ordered pattern rules and short-circuits on the
// first match, so a draft with multiple issues reports only the first.
func (v *Validator) CheckPhase1(draftText, sourceTitle string) (Reason, bool) {
	for _, c := range phase1Checks {
		if c.match(v, draftText, sourceTitle) {
			return c.reason, false
		}
	}
	return "", true
}

// Validate runs both phases for one candidate draft. Phase 2 is entered
// only when Phase 1 passes and budget remains; a judge error or timeout
// rejects fail-closed under judge_error, never silently passes.
func (v *Validator) Validate(ctx context.Context, draftText, sourceTitle string) Result {
	if reason, ok := v.CheckPhase1(draftText, sourceTitle); !ok {
		v.log.Debug().Str("reason", string(reason)).Msg("draft rejected at phase 1")
		return Result{Reason: reason}
	}

	if v.budget > 0 && v.used >= v.budget {
		v.log.Warn().Int("budget", v.budget).Msg("judge budget exhausted, rejecting remaining candidates")
		return Result{Reason: ReasonBudgetExhausted}
	}
	v.used++

	reviewCtx := ctx
	if v.timeout > 0 {
		var cancel context.CancelFunc
		reviewCtx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	verdict, err := v.judge.Review(reviewCtx, draftText, sourceTitle)
	if err != nil {
		v.log.Warn().Err(err).Msg("judge call failed, rejecting fail-closed")
		return Result{Reason: ReasonJudgeError}
	}
	if !verdict.Pass {
		reason := verdict.Reason
		if reason == "" {
			reason = ReasonInconsistent
		}
		v.log.Debug().Str("reason", string(reason)).Str("explanation", verdict.Explanation).Msg("draft rejected at phase 2")
		return Result{Reason: reason}
	}
	return Result{Accepted: true}
}

// JudgeCallsUsed reports how many Phase 2 calls the run consumed.
func (v *Validator) JudgeCallsUsed() int { return v.used }

// BudgetExhausted reports whether the Phase 2 cap was reached.
func (v *Validator) BudgetExhausted() bool {
	return v.budget > 0 && v.used >= v.budget
}
