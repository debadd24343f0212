package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deusflow/ainews/internal/cache"
	"github.com/deusflow/ainews/internal/news"
	"github.com/deusflow/ainews/internal/scraper"
)

var runTime = time.Date(2026, 2, 24, 14, 0, 0, 0, time.UTC)

func newTestAdapter(srv *httptest.Server, opts Options) *Adapter {
	opts.Now = func() time.Time { return runTime }
	pages := scraper.New(srv.Client(), cache.New(16), nil, nil)
	return New(srv.Client(), pages, opts, nil)
}

func serveHTML(pages map[string]string, hits *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
}

func byURL(items []news.RawItem) map[string]news.RawItem {
	out := make(map[string]news.RawItem, len(items))
	for _, it := range items {
		out[it.URL] = it
	}
	return out
}

const listingWithDates = `<html><body>
<div class="row"><span class="date">2026-02-23 08:00</span><a href="/post/1">OpenAI 发布新一代推理模型 GPT</a><span class="date">2026-02-24 10:00</span></div>
<section><p class="date">2026-02-22 07:30</p><div><div><a href="/post/2">Anthropic 推出 Claude 新版本</a></div></div></section>
<div class="row"><a href="/post/4">登录后查看更多精彩内容吧</a><span class="date">2026-02-24 11:00</span></div>
<div class="row"><a href="javascript:void(0)">一个很长的标题但是是脚本链接</a><span class="date">2026-02-24 11:00</span></div>
<div class="row"><a href="/post/5">首页新闻</a><span class="date">2026-02-24 11:00</span></div>
<div class="row"><a href="/tag/openai-topic">OpenAI 相关标签聚合页面链接</a><span class="date">2026-02-24 11:00</span></div>
<div class="row"><a href="/post/6">谷歌发布新的搜索产品功能更新</a><span class="date">2026-02-24 12:00</span></div>
</body></html>`

func TestCollectHTMLNearestDate(t *testing.T) {
	srv := serveHTML(map[string]string{"/list": listingWithDates}, nil)
	defer srv.Close()

	a := newTestAdapter(srv, Options{})
	items, err := a.Collect(context.Background(), news.SourceConfig{
		Name:                "listing",
		Kind:                news.KindHTML,
		URL:                 srv.URL + "/list",
		Weight:              1.2,
		Tags:                []string{"ai"},
		ArticleSelector:     "div.row a, section a",
		DateSelector:        ".date",
		LinkPattern:         `/post/\d+`,
		RequiredKeywordsAny: []string{"openai", "claude"},
	})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items: %+v", len(items), items)
	}

	got := byURL(items)
	first, ok := got[srv.URL+"/post/1"]
	if !ok {
		t.Fatalf("missing /post/1 in %+v", items)
	}
	// equal distance on both sides: the date after the anchor wins
	if !first.PublishedAt.Equal(time.Date(2026, 2, 24, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("post 1 published %v", first.PublishedAt)
	}
	if first.SourceWeight != 1.2 || first.SourceName != "listing" || !first.DiscoveredAt.Equal(runTime) {
		t.Errorf("unexpected item fields: %+v", first)
	}
	if !strings.Contains(first.Content, "2026-02-23 08:00") {
		t.Errorf("content should carry container text, got %q", first.Content)
	}

	second, ok := got[srv.URL+"/post/2"]
	if !ok {
		t.Fatalf("missing /post/2 in %+v", items)
	}
	if !second.PublishedAt.Equal(time.Date(2026, 2, 22, 7, 30, 0, 0, time.UTC)) {
		t.Errorf("post 2 published %v", second.PublishedAt)
	}
}

func TestCollectHTMLContainerMode(t *testing.T) {
	page := `<html><body>
<div class="card"><a href="/a/1">第一篇关于大模型推理的文章</a><a href="/a/1b">第一篇的第二个链接也很长</a><time datetime="2026-02-24T03:00:00Z">3 hours ago</time></div>
<div class="card"><a href="/a/2">短</a><a href="/a/2">第二篇关于智能体的深度文章</a><time>2026年2月23日 20:00</time><span class="by">作者：量子位</span></div>
</body></html>`
	srv := serveHTML(map[string]string{"/cards": page}, nil)
	defer srv.Close()

	a := newTestAdapter(srv, Options{})
	items, err := a.Collect(context.Background(), news.SourceConfig{
		Name:                      "cards",
		Kind:                      news.KindHTML,
		URL:                       srv.URL + "/cards",
		ArticleSelector:           "a",
		ItemContainerSelector:     ".card",
		DateSelector:              "time",
		DateAttr:                  "datetime",
		AuthorSelector:            ".by",
		RequiredAuthorKeywordsAny: nil,
	})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("want one item per card, got %d: %+v", len(items), items)
	}
	if items[0].URL != srv.URL+"/a/1" || !items[0].PublishedAt.Equal(time.Date(2026, 2, 24, 3, 0, 0, 0, time.UTC)) {
		t.Errorf("card 1: %+v", items[0])
	}
	if items[1].URL != srv.URL+"/a/2" || !items[1].PublishedAt.Equal(time.Date(2026, 2, 23, 20, 0, 0, 0, time.UTC)) {
		t.Errorf("card 2: %+v", items[1])
	}
}

func TestCollectHTMLAuthorFilter(t *testing.T) {
	page := `<html><body>
<div class="card"><a href="/a/1">第一篇关于大模型推理的文章</a><time>2026-02-24 09:00</time><span class="by">机器之心</span></div>
<div class="card"><a href="/a/2">第二篇关于智能体的深度文章</a><time>2026-02-24 09:00</time><span class="by">某营销号</span></div>
</body></html>`
	srv := serveHTML(map[string]string{"/cards": page}, nil)
	defer srv.Close()

	a := newTestAdapter(srv, Options{})
	items, err := a.Collect(context.Background(), news.SourceConfig{
		Name:                      "cards",
		Kind:                      news.KindHTML,
		URL:                       srv.URL + "/cards",
		ArticleSelector:           "a",
		ItemContainerSelector:     ".card",
		DateSelector:              "time",
		AuthorSelector:            ".by",
		RequiredAuthorKeywordsAny: []string{"机器之心"},
	})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(items) != 1 || items[0].URL != srv.URL+"/a/1" {
		t.Fatalf("got %+v", items)
	}
}

func TestCollectHTMLFallsBackToArticlePage(t *testing.T) {
	var hits int32
	pages := map[string]string{
		"/home": `<html><body>
<article><h2><a href="/post/3">DeepMind 发布多模态研究成果</a></h2><p>摘要</p></article>
<ul><li><a href="/post/3">DeepMind 发布多模态研究成果</a></li>
<li><a href="/post/7">没有任何日期信息的一篇文章</a></li></ul>
</body></html>`,
		"/post/3": `<html><head><meta property="article:published_time" content="2026-02-24T05:00:00Z"></head><body>
<p>本文来自微信公众号：新智元</p></body></html>`,
		"/post/7": `<html><body><p>正文没有日期</p></body></html>`,
	}
	srv := serveHTML(pages, &hits)
	defer srv.Close()

	a := newTestAdapter(srv, Options{})
	items, err := a.Collect(context.Background(), news.SourceConfig{
		Name:             "home",
		Kind:             news.KindHTML,
		URL:              srv.URL + "/home",
		SplitByPublisher: true,
	})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items: %+v", len(items), items)
	}
	it := items[0]
	if it.URL != srv.URL+"/post/3" || !it.PublishedAt.Equal(time.Date(2026, 2, 24, 5, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected item %+v", it)
	}
	if it.SourceName != "home/新智元" {
		t.Errorf("SourceName = %q", it.SourceName)
	}
	// listing + /post/3 once (cached for the publisher lookup) + /post/7
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Errorf("server hits = %d, want 3", n)
	}
}

func TestCollectHTMLBadPattern(t *testing.T) {
	srv := serveHTML(map[string]string{"/list": listingWithDates}, nil)
	defer srv.Close()

	a := newTestAdapter(srv, Options{})
	_, err := a.Collect(context.Background(), news.SourceConfig{
		Name:        "bad",
		Kind:        news.KindHTML,
		URL:         srv.URL + "/list",
		LinkPattern: "(",
	})
	if err == nil {
		t.Fatal("expected invalid pattern error")
	}
}

func TestCollectHTMLStatusError(t *testing.T) {
	srv := serveHTML(map[string]string{}, nil)
	defer srv.Close()

	a := newTestAdapter(srv, Options{})
	if _, err := a.Collect(context.Background(), news.SourceConfig{Name: "x", Kind: news.KindHTML, URL: srv.URL + "/missing"}); err == nil {
		t.Fatal("expected HTTP error")
	}
}
