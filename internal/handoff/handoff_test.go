package handoff

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deusflow/ainews/internal/metrics"
	"github.com/deusflow/ainews/internal/news"
	"github.com/deusflow/ainews/internal/retry"
)

var fastRetry = retry.Policy{MaxAttempts: 3, Delay: time.Millisecond}

func batch() Batch {
	it := news.RankedItem{Score: 9.5}
	it.ItemID = "abc"
	it.Title = "OpenAI 发布新模型"
	it.Perspective = news.PerspectiveProduct
	return Batch{
		RunAt:   time.Date(2026, 2, 24, 14, 0, 0, 0, time.UTC),
		Items:   []news.RankedItem{it},
		Metrics: metrics.NewRun(1, true),
	}
}

func TestDeliverRetriesServerErrors(t *testing.T) {
	var (
		calls int32
		mu    sync.Mutex
		got   map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type %q", r.Header.Get("Content-Type"))
		}
		mu.Lock()
		defer mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, srv.Client(), fastRetry, nil)
	if err := w.Deliver(context.Background(), batch()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
	mu.Lock()
	defer mu.Unlock()
	items, _ := got["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("payload items = %v", got["items"])
	}
	first := items[0].(map[string]any)
	if first["item_id"] != "abc" || first["perspective"] != "product" || first["score"] != 9.5 {
		t.Errorf("payload item = %v", first)
	}
}

func TestDeliverClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, srv.Client(), fastRetry, nil)
	if err := w.Deliver(context.Background(), batch()); err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestDeliverGivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, srv.Client(), fastRetry, nil)
	if err := w.Deliver(context.Background(), batch()); err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}
