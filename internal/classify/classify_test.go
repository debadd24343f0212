package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/deusflow/ainews/internal/news"
)

func normalized(title string, tags ...string) news.NormalizedItem {
	return news.NormalizedItem{ItemID: title, Title: title, Content: title, Tags: tags}
}

type stubFallback struct {
	p     news.Perspective
	ok    bool
	err   error
	calls int
}

func (s *stubFallback) ClassifyPerspective(ctx context.Context, title, content string) (news.Perspective, bool, error) {
	s.calls++
	return s.p, s.ok, s.err
}

func TestRuleClassification(t *testing.T) {
	items := []news.NormalizedItem{
		normalized("某公司发布 AI 应用新版本"),
		normalized("新论文提出高效推理架构"),
		normalized("AI 初创公司完成新一轮融资"),
	}
	out := New(nil, nil).Items(context.Background(), items)

	want := []news.Perspective{news.PerspectiveProduct, news.PerspectiveTechnology, news.PerspectiveIndustry}
	for i, it := range out {
		if it.Perspective != want[i] || it.ClassificationSource != news.ClassifiedByRule {
			t.Errorf("%q: got %s/%s, want %s/rule", it.Title, it.Perspective, it.ClassificationSource, want[i])
		}
	}
}

func TestByRulesTieIsInconclusive(t *testing.T) {
	// one product keyword, one technology keyword
	if p, ok := ByRules("发布 论文"); ok {
		t.Errorf("tie should be inconclusive, got %s", p)
	}
	if _, ok := ByRules("weekly digest"); ok {
		t.Error("no keyword should be inconclusive")
	}
}

func TestTagRulesAndFallbackOrder(t *testing.T) {
	fb := &stubFallback{p: news.PerspectiveProduct, ok: true}
	c := New(fb, nil)

	p, src := c.Item(context.Background(), normalized("weekly digest", "Research"))
	if p != news.PerspectiveTechnology || src != news.ClassifiedByRule {
		t.Errorf("tag rule: got %s/%s", p, src)
	}
	if fb.calls != 0 {
		t.Error("fallback must not run when tags decide")
	}

	p, src = c.Item(context.Background(), normalized("weekly digest"))
	if p != news.PerspectiveProduct || src != news.ClassifiedByExternal {
		t.Errorf("fallback: got %s/%s", p, src)
	}
}

func TestDefaultPerspective(t *testing.T) {
	tests := []struct {
		name     string
		fallback Fallback
	}{
		{"no fallback", nil},
		{"fallback undecided", &stubFallback{}},
		{"fallback error", &stubFallback{err: errors.New("quota exceeded")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, src := New(tt.fallback, nil).Item(context.Background(), normalized("weekly digest"))
			if p != Default || src != news.ClassifiedByFallback {
				t.Errorf("got %s/%s", p, src)
			}
		})
	}
}
