package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter paces requests per host. Secondary article-page fetches go
// through it so one listing with many links does not hammer a single site.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    time.Duration
	burst    int
}

// NewHostLimiter allows one request per interval per host, with burst.
func NewHostLimiter(interval time.Duration, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    interval,
		burst:    burst,
	}
}

// Wait blocks until a request to rawURL's host is allowed or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	if h == nil || h.every <= 0 {
		return nil
	}
	return h.limiter(hostOf(rawURL)).Wait(ctx)
}

func (h *HostLimiter) limiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(h.every), h.burst)
		h.limiters[host] = l
	}
	return l
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.ToLower(u.Hostname())
}

// Budget caps calls to an external collaborator per day.
type Budget struct {
	mu        sync.Mutex
	max       int
	count     int
	denied    int
	resetTime time.Time
}

// NewBudget creates a daily budget. max <= 0 means unlimited.
func NewBudget(max int) *Budget {
	return &Budget{
		max:       max,
		resetTime: time.Now().Add(24 * time.Hour),
	}
}

// Take reserves one call, reporting false when the budget is exhausted.
func (b *Budget) Take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if time.Now().After(b.resetTime) {
		b.count = 0
		b.resetTime = time.Now().Add(24 * time.Hour)
	}
	if b.max > 0 && b.count >= b.max {
		b.denied++
		return false
	}
	b.count++
	return true
}

// Stats returns used and denied counts since the last reset.
func (b *Budget) Stats() (used, denied int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count, b.denied
}
