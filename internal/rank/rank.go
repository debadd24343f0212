// Package rank scores classified items and selects a bounded, balanced
// subset of them.
package rank

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/deusflow/ainews/internal/news"
)

// Weights are the scoring constants. They have no derivation beyond what
// worked in practice, so they stay configurable.
type Weights struct {
	MaxRecency     float64
	RecencyHorizon time.Duration
	AuthorityScale float64
	HeatPerHit     float64
	HeatCap        float64
	SignalWords    []string
	TagBonus       TagBonus
}

type TagBonus struct {
	PriorityTop float64
	SelfMedia   float64
	Personal    float64
	Creator     float64
	// PlatformUnofficial applies to "wechat" sources not tagged "official".
	PlatformUnofficial float64
	Official           float64
}

var DefaultWeights = Weights{
	MaxRecency:     5.0,
	RecencyHorizon: 24 * time.Hour,
	AuthorityScale: 2.5,
	HeatPerHit:     0.4,
	HeatCap:        2.0,
	SignalWords:    []string{"发布", "开源", "融资", "上线", "breakthrough", "launch", "benchmark"},
	TagBonus: TagBonus{
		PriorityTop:        3.0,
		SelfMedia:          1.0,
		Personal:           0.8,
		Creator:            0.4,
		PlatformUnofficial: 0.2,
		Official:           -0.2,
	},
}

type Ranker struct {
	w Weights
}

func New(w Weights) *Ranker {
	return &Ranker{w: w}
}

// Rank scores every item against now and sorts by score, highest first.
func (r *Ranker) Rank(items []news.ClassifiedItem, now time.Time) []news.RankedItem {
	ranked := make([]news.RankedItem, 0, len(items))
	for _, it := range items {
		recency := r.Recency(it.PublishedAt, it.DiscoveredAt, now)
		authority := it.SourceWeight * r.w.AuthorityScale
		heat := r.Heat(it.Title + " " + it.Content)
		bonus := r.TagBonus(it.Tags)

		ranked = append(ranked, news.RankedItem{
			ClassifiedItem: it,
			Score:          math.Round((recency+authority+heat+bonus)*10000) / 10000,
			RankReason: fmt.Sprintf("recency=%.2f, authority=%.2f, heat=%.2f, tag_bonus=%.2f",
				recency, authority, heat, bonus),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// Recency decays linearly from MaxRecency at age zero to nothing at the
// horizon. The publish time is used when known.
func (r *Ranker) Recency(published *time.Time, discovered, now time.Time) float64 {
	base := discovered
	if published != nil {
		base = *published
	}
	horizon := r.w.RecencyHorizon.Hours()
	if horizon <= 0 {
		return 0
	}
	age := math.Max(0, now.Sub(base).Hours())
	return math.Max(0, r.w.MaxRecency*(1-math.Min(age, horizon)/horizon))
}

func (r *Ranker) Heat(text string) float64 {
	hits := news.CountSubstrings(text, r.w.SignalWords)
	return math.Min(r.w.HeatCap, float64(hits)*r.w.HeatPerHit)
}

func (r *Ranker) TagBonus(tags []string) float64 {
	set := news.TagSet(tags)
	b := r.w.TagBonus
	bonus := 0.0
	if set["priority_top"] {
		bonus += b.PriorityTop
	}
	if set["self_media"] {
		bonus += b.SelfMedia
	}
	if set["personal"] {
		bonus += b.Personal
	}
	if set["creator"] {
		bonus += b.Creator
	}
	if set["wechat"] && !set["official"] {
		bonus += b.PlatformUnofficial
	}
	if set["official"] {
		bonus += b.Official
	}
	return bonus
}
