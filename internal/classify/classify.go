// Package classify assigns each item one perspective: keyword rules first,
// then source tags, then an optional external fallback, then a default.
package classify

import (
	"context"
	"log/slog"

	"github.com/deusflow/ainews/internal/news"
)

// Default is assigned when nothing else decides.
const Default = news.PerspectiveIndustry

var ruleKeywords = map[news.Perspective][]string{
	news.PerspectiveProduct:    {"发布", "上线", "产品", "应用", "agent", "app", "launch", "release"},
	news.PerspectiveTechnology: {"论文", "算法", "架构", "benchmark", "推理", "训练", "模型", "research"},
	news.PerspectiveIndustry:   {"融资", "估值", "政策", "合作", "并购", "市场", "生态", "监管"},
}

var tagRules = []struct {
	tags        []string
	perspective news.Perspective
}{
	{[]string{"product", "application", "app"}, news.PerspectiveProduct},
	{[]string{"technology", "research", "model"}, news.PerspectiveTechnology},
	{[]string{"industry", "policy", "market"}, news.PerspectiveIndustry},
}

// Fallback is consulted only when rules and tags are inconclusive.
type Fallback interface {
	ClassifyPerspective(ctx context.Context, title, content string) (news.Perspective, bool, error)
}

type Classifier struct {
	fallback Fallback
	logger   *slog.Logger
}

// New builds a classifier. fallback may be nil.
func New(fallback Fallback, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{fallback: fallback, logger: logger.With("component", "classify")}
}

// Items classifies every item, preserving order.
func (c *Classifier) Items(ctx context.Context, items []news.NormalizedItem) []news.ClassifiedItem {
	out := make([]news.ClassifiedItem, 0, len(items))
	for _, it := range items {
		p, src := c.Item(ctx, it)
		out = append(out, news.ClassifiedItem{
			NormalizedItem:       it,
			Perspective:          p,
			ClassificationSource: src,
		})
	}
	return out
}

// Item classifies one item and reports how the perspective was decided.
// A failing fallback is logged and treated as inconclusive.
func (c *Classifier) Item(ctx context.Context, it news.NormalizedItem) (news.Perspective, news.ClassificationSource) {
	if p, ok := ByRules(it.Title + " " + it.Content); ok {
		return p, news.ClassifiedByRule
	}
	if p, ok := ByTags(it.Tags); ok {
		return p, news.ClassifiedByRule
	}
	if c.fallback != nil {
		p, ok, err := c.fallback.ClassifyPerspective(ctx, it.Title, it.Content)
		if err != nil {
			c.logger.Warn("fallback classification failed", "item_id", it.ItemID, "error", err)
		} else if ok {
			return p, news.ClassifiedByExternal
		}
	}
	return Default, news.ClassifiedByFallback
}

// ByRules scores text against each perspective's keywords. It is
// inconclusive when nothing matches or the best score is tied.
func ByRules(text string) (news.Perspective, bool) {
	var (
		best      news.Perspective
		bestScore int
		tied      bool
	)
	for _, p := range news.Perspectives {
		score := news.CountSubstrings(text, ruleKeywords[p])
		switch {
		case score > bestScore:
			best, bestScore, tied = p, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}
	if bestScore == 0 || tied {
		return "", false
	}
	return best, true
}

// ByTags maps topical source tags onto a perspective.
func ByTags(tags []string) (news.Perspective, bool) {
	set := news.TagSet(tags)
	for _, rule := range tagRules {
		for _, t := range rule.tags {
			if set[t] {
				return rule.perspective, true
			}
		}
	}
	return "", false
}
