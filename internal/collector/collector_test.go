package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deusflow/ainews/internal/news"
)

type fakeFetcher struct {
	mu      sync.Mutex
	active  int32
	peak    int32
	results map[string][]news.RawItem
	fail    map[string]error
	panics  map[string]bool
}

func (f *fakeFetcher) Collect(ctx context.Context, src news.SourceConfig) ([]news.RawItem, error) {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	f.mu.Lock()
	if n > f.peak {
		f.peak = n
	}
	f.mu.Unlock()

	time.Sleep(10 * time.Millisecond)
	if f.panics[src.Name] {
		panic("boom")
	}
	if err := f.fail[src.Name]; err != nil {
		return nil, err
	}
	return f.results[src.Name], nil
}

func items(source string, n int) []news.RawItem {
	out := make([]news.RawItem, n)
	for i := range out {
		out[i] = news.RawItem{SourceName: source, URL: fmt.Sprintf("https://%s/%d", source, i)}
	}
	return out
}

func TestCollectAllIsolatesFailures(t *testing.T) {
	f := &fakeFetcher{
		results: map[string][]news.RawItem{"a": items("a", 3), "c": items("c", 2)},
		fail:    map[string]error{"b": errors.New("HTTP error: 503")},
		panics:  map[string]bool{"d": true},
	}
	sources := []news.SourceConfig{{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"}}

	res := CollectAll(context.Background(), f, sources, nil)

	if len(res.Items) != 5 {
		t.Fatalf("got %d items, want 5", len(res.Items))
	}
	if res.Errors["b"] != "HTTP error: 503" {
		t.Errorf("errors[b] = %q", res.Errors["b"])
	}
	if res.Errors["d"] == "" {
		t.Error("panicking source should be recorded as an error")
	}
	if len(res.Errors) != 2 {
		t.Errorf("errors = %v", res.Errors)
	}
	if res.RawCounts["a"] != 3 || res.RawCounts["c"] != 2 {
		t.Errorf("raw counts = %v", res.RawCounts)
	}

	// per-source order is preserved
	var fromA []string
	for _, it := range res.Items {
		if it.SourceName == "a" {
			fromA = append(fromA, it.URL)
		}
	}
	for i, u := range fromA {
		if u != fmt.Sprintf("https://a/%d", i) {
			t.Errorf("source a order broken: %v", fromA)
			break
		}
	}
}

func TestCollectAllBoundsWorkers(t *testing.T) {
	f := &fakeFetcher{results: map[string][]news.RawItem{}}
	var sources []news.SourceConfig
	for i := 0; i < 20; i++ {
		sources = append(sources, news.SourceConfig{Name: fmt.Sprintf("s%d", i)})
	}

	CollectAll(context.Background(), f, sources, nil)

	if f.peak > MaxWorkers {
		t.Errorf("peak concurrency %d exceeds %d", f.peak, MaxWorkers)
	}
}

func TestCollectAllEmpty(t *testing.T) {
	res := CollectAll(context.Background(), &fakeFetcher{}, nil, nil)
	if len(res.Items) != 0 || len(res.Errors) != 0 {
		t.Errorf("unexpected %+v", res)
	}
}
