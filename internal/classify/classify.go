// Package classify assigns each item exactly one category via an ordered
// rule table. Rules are evaluated first-match-wins, so ambiguity between
// overlapping keyword families always resolves the same way.
package classify

import (
	"regexp"
	"strings"

	"github.com/abadojack/whatlanggo"

	"aidigest/internal/item"
)

// Input is everything classification is allowed to look at. Keeping it a
// plain value makes the classifier a pure function.
type Input struct {
	Title       string
	BodyExcerpt string
	URL         string
	SourceType  item.SourceType
}

// Result is the category plus its score delta.
type Result struct {
	Category item.Category
	Delta    int
}

// DefaultDeltas is the additive bonus/penalty per category. Positive for
// content worth drafting, negative for content we want to sink.
var DefaultDeltas = map[item.Category]int{
	item.CategoryNonEnglish:        -1000,
	item.CategoryJapanOrigin:       -800,
	item.CategoryExcluded:          -600,
	item.CategoryLowCredibility:    -400,
	item.CategoryPersonalUsage:     -200,
	item.CategoryMarketing:         -300,
	item.CategoryPracticalOfficial: 1000,
	item.CategoryPractical:         700,
	item.CategoryTechnical:         400,
	item.CategoryGeneral:           0,
}

// nonEnglishConfidence is the detector confidence above which a
// non-English text is filtered.
const nonEnglishConfidence = 0.7

var (
	japanHostSuffixes = []string{".jp"}
	japanHosts        = []string{
		"qiita.com",
		"zenn.dev",
		"note.com",
		"hatena.ne.jp",
		"hatenablog.com",
		"itmedia.co.jp",
	}

	excludedRe = regexp.MustCompile(`(?i)proof[ -]of[ -]concept|\bpoc\b|experimental|\bexperiment\b|toy project|weekend project|just for fun|hackathon`)

	lowCredibilityRe = regexp.MustCompile(`(?i)\brumor\b|\brumour\b|unconfirmed|allegedly|reportedly|\bleak(ed|s)?\b|sources say|if true`)

	personalUsageRe = regexp.MustCompile(`(?i)\bi tried\b|\bi built\b|\bi made\b|\bi tested\b|\bmy setup\b|\bmy workflow\b|\bmy experience\b|\bhow i\b`)

	marketingRe = regexp.MustCompile(`(?i)breakthrough|revolutionar(y|ize[sd]?)|game[ -]chang(er|ing)|transformative|next[ -]generation|paradigm shift|world[ -]first|unprecedented`)

	// Broad practical families: tool releases, API changes, implementation
	// guides, integrations, production use cases.
	practicalRe = regexp.MustCompile(`(?i)\breleases?\b|\breleased\b|\bv\d+\.\d+|\bversion\b|\bavailable\b|\blaunched\b|\bship(s|ped)?\b|new feature|\bupdates?\b|\bAPI\b|\bendpoint\b|\bparameter\b|breaking change|\bdeprecated\b|\bmigration\b|\bspecification\b|\bchangelog\b|how to|\btutorial\b|\bguide\b|\bimplementation\b|\barchitecture\b|\bexample\b|step[ -]by[ -]step|\bwalkthrough\b|\bintegration\b|\bworkflow\b|\bpipeline\b|\borchestration\b|use case|case study|\bproduction\b|best practice`)

	technicalRe = regexp.MustCompile(`(?i)deep dive|\banalysis\b|\bcomparison\b|\bbenchmarks?\b|\bevaluation\b|\bverification\b|\bmeasurement\b|\bperformance\b|\boptimization\b|\binternals\b`)
)

// rule pairs a predicate with the category it yields. Order in the table
// is the precedence order.
type rule struct {
	category item.Category
	match    func(in Input, text string) bool
}

var rules = []rule{
	{item.CategoryNonEnglish, matchNonEnglish},
	{item.CategoryJapanOrigin, matchJapanOrigin},
	{item.CategoryExcluded, func(_ Input, text string) bool { return excludedRe.MatchString(text) }},
	{item.CategoryLowCredibility, func(_ Input, text string) bool { return lowCredibilityRe.MatchString(text) }},
	{item.CategoryPersonalUsage, func(_ Input, text string) bool { return personalUsageRe.MatchString(text) }},
	{item.CategoryMarketing, func(_ Input, text string) bool { return marketingRe.MatchString(text) }},
	{item.CategoryPracticalOfficial, func(in Input, text string) bool {
		return practicalRe.MatchString(text) && in.SourceType.Official()
	}},
	{item.CategoryPractical, func(_ Input, text string) bool { return practicalRe.MatchString(text) }},
	{item.CategoryTechnical, func(_ Input, text string) bool { return technicalRe.MatchString(text) }},
}

// Classifier evaluates the rule table with a configurable delta table.
type Classifier struct {
	deltas map[item.Category]int
}

// New builds a classifier. A nil or partial delta table falls back to
// DefaultDeltas per category.
func New(deltas map[item.Category]int) *Classifier {
	merged := make(map[item.Category]int, len(DefaultDeltas))
	for cat, d := range DefaultDeltas {
		merged[cat] = d
	}
	for cat, d := range deltas {
		merged[cat] = d
	}
	return &Classifier{deltas: merged}
}

// Classify maps the input to exactly one category. Pure: no network, no
// state, deterministic for identical input.
func (c *Classifier) Classify(in Input) Result {
	text := strings.ToLower(in.Title + " " + in.BodyExcerpt)

	for _, r := range rules {
		if r.match(in, text) {
			return Result{Category: r.category, Delta: c.deltas[r.category]}
		}
	}
	return Result{Category: item.CategoryGeneral, Delta: c.deltas[item.CategoryGeneral]}
}

func matchNonEnglish(in Input, _ string) bool {
	text := strings.TrimSpace(in.Title + " " + in.BodyExcerpt)
	if text == "" {
		return false
	}
	info := whatlanggo.Detect(text)
	return info.Lang != whatlanggo.Eng && info.Confidence > nonEnglishConfidence
}

func matchJapanOrigin(in Input, _ string) bool {
	u := strings.ToLower(in.URL)
	host := hostOf(u)
	for _, suffix := range japanHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	for _, h := range japanHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return strings.Contains(u, "/ja/") || strings.Contains(u, "/jp/")
}

func hostOf(u string) string {
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	if i := strings.IndexAny(u, "/?#"); i >= 0 {
		u = u[:i]
	}
	return strings.TrimPrefix(u, "www.")
}
