package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deusflow/ainews/internal/cache"
)

func TestFetcherCachesPages(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing user agent")
		}
		fmt.Fprint(w, `<html><head><meta property="article:published_time" content="2026-02-24T06:00:00Z"></head>
			<body><p>本文来自微信公众号：机器之心，转载请联系</p></body></html>`)
	}))
	defer srv.Close()

	f := New(srv.Client(), cache.New(8), nil, nil)
	ref := time.Date(2026, 2, 24, 14, 0, 0, 0, time.UTC)

	got, ok := f.PublishedAt(context.Background(), srv.URL+"/a", ref)
	if !ok || !got.Equal(time.Date(2026, 2, 24, 6, 0, 0, 0, time.UTC)) {
		t.Fatalf("PublishedAt = %v %v", got, ok)
	}
	if p := f.Publisher(context.Background(), srv.URL+"/a"); p != "机器之心" {
		t.Fatalf("Publisher = %q", p)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("page fetched %d times, want 1", n)
	}
}

func TestFetcherHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(srv.Client(), cache.New(8), nil, nil)
	if _, ok := f.PublishedAt(context.Background(), srv.URL, time.Now()); ok {
		t.Fatal("404 must resolve to unknown")
	}
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error")
	}
}

func TestExtractPublisher(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"本文来自微信公众号：量子位，作者：张三", "量子位"},
		{"标题 作者：“新智元” 发布于今天", "新智元"},
		{`作者 "AI科技评论"`, "AI科技评论"},
		{"来源: InfoQ 2026-02-24", "InfoQ"},
		{"作者：李", ""},
		{"没有署名的文本", ""},
		{"本文来自微信公众号：A&amp;B科技 出品", "A&B科技"},
	}
	for _, tt := range tests {
		if got := ExtractPublisher(tt.text); got != tt.want {
			t.Errorf("ExtractPublisher(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
