// Package score ranks classified items and selects the top of each
// category bucket for downstream draft generation and reporting.
package score

import (
	"sort"

	"aidigest/internal/item"
)

// Weights are the per-metric engagement weights.
type Weights struct {
	Like    float64
	Reshare float64
	Reply   float64
}

// DefaultWeights matches the report scoring the pipeline has always used.
var DefaultWeights = Weights{Like: 1, Reshare: 2, Reply: 3}

// DefaultMultipliers weight the engagement component per source type
// before the category delta is added. Official feeds stay at or above
// 1.0; social search is discounted so raw engagement alone can't outrank
// an official release.
var DefaultMultipliers = map[item.SourceType]float64{
	item.SourceRSS:           1.2,
	item.SourceRepoRelease:   1.2,
	item.SourcePageWatch:     1.0,
	item.SourceSocialAccount: 0.8,
	item.SourceSocialSearch:  0.5,
}

// Scorer computes item scores from engagement, source trust and the
// classifier's category delta.
type Scorer struct {
	weights     Weights
	multipliers map[item.SourceType]float64
}

// New builds a scorer. Zero-value weights and a nil multiplier table fall
// back to the defaults.
func New(w Weights, multipliers map[item.SourceType]float64) *Scorer {
	if w == (Weights{}) {
		w = DefaultWeights
	}
	merged := make(map[item.SourceType]float64, len(DefaultMultipliers))
	for src, m := range DefaultMultipliers {
		merged[src] = m
	}
	for src, m := range multipliers {
		merged[src] = m
	}
	return &Scorer{weights: w, multipliers: merged}
}

// Score computes the final rank: the source multiplier applies to the
// engagement component only, the category delta is added afterwards.
func (s *Scorer) Score(it item.Item, categoryDelta int) int {
	engagement := 0.0
	if it.Engagement != nil {
		engagement = float64(it.Engagement.Likes)*s.weights.Like +
			float64(it.Engagement.Reshares)*s.weights.Reshare +
			float64(it.Engagement.Replies)*s.weights.Reply
	}
	multiplier, ok := s.multipliers[it.SourceType]
	if !ok {
		multiplier = 1.0
	}
	return int(engagement*multiplier) + categoryDelta
}

// Sort orders items by score descending, then recency descending, then ID
// ascending, so repeated runs on identical input produce identical order.
func Sort(items []item.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if !items[i].PublishedAt.Equal(items[j].PublishedAt) {
			return items[i].PublishedAt.After(items[j].PublishedAt)
		}
		return items[i].ID < items[j].ID
	})
}

// TopPerBucket takes the K best items of each category. perBucket maps a
// category to its K; categories not listed use defaultK. Input must
// already be sorted; output preserves that order.
func TopPerBucket(items []item.Item, perBucket map[item.Category]int, defaultK int) []item.Item {
	taken := make(map[item.Category]int)
	out := make([]item.Item, 0, len(items))
	for _, it := range items {
		k := defaultK
		if v, ok := perBucket[it.Category]; ok {
			k = v
		}
		if taken[it.Category] >= k {
			continue
		}
		taken[it.Category]++
		out = append(out, it)
	}
	return out
}
