package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/ainews/internal/cache"
	"github.com/deusflow/ainews/internal/dom"
	"github.com/deusflow/ainews/internal/ratelimit"
	"github.com/deusflow/ainews/internal/timeparse"
)

const (
	// DefaultUserAgent identifies ordinary page fetches.
	DefaultUserAgent = "Mozilla/5.0 (compatible; ainews/1.0; +https://github.com/deusflow/ainews)"

	maxPageBytes       = 4 << 20
	publisherScanRunes = 8000
	pageTTL            = 6 * time.Hour
)

// Fetcher loads article pages for metadata that listings do not carry.
// Bodies are shared through a process-lifetime cache so a URL needed for both
// the publish time and the publisher is downloaded once.
type Fetcher struct {
	client  *http.Client
	pages   *cache.Cache
	limiter *ratelimit.HostLimiter
	logger  *slog.Logger
}

func New(client *http.Client, pages *cache.Cache, limiter *ratelimit.HostLimiter, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:  client,
		pages:   pages,
		limiter: limiter,
		logger:  logger.With("component", "scraper"),
	}
}

// Fetch returns the body of url, from cache when possible.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.pages != nil {
		if v, ok := f.pages.Get(url); ok {
			return v.(string), nil
		}
	}

	if err := f.limiter.Wait(ctx, url); err != nil {
		return "", err
	}

	body, err := Get(ctx, f.client, url, http.Header{"User-Agent": {DefaultUserAgent}})
	if err != nil {
		return "", err
	}

	if f.pages != nil {
		f.pages.Set(url, body, pageTTL)
	}
	return body, nil
}

// PublishedAt fetches url and extracts its publish time from page metadata.
// Fetch failures count as "unknown".
func (f *Fetcher) PublishedAt(ctx context.Context, url string, ref time.Time) (time.Time, bool) {
	body, err := f.Fetch(ctx, url)
	if err != nil {
		f.logger.Debug("article page fetch failed", "url", url, "error", err)
		return time.Time{}, false
	}
	return timeparse.FromHTML(body, ref)
}

// Publisher fetches url and looks for a byline in the page text.
func (f *Fetcher) Publisher(ctx context.Context, url string) string {
	body, err := f.Fetch(ctx, url)
	if err != nil {
		f.logger.Debug("article page fetch failed", "url", url, "error", err)
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	return ExtractPublisher(dom.Truncate(dom.Text(doc.Selection), publisherScanRunes))
}

// Get performs a GET with the given headers and returns the body. Non-2xx
// responses are errors.
func Get(ctx context.Context, client *http.Client, url string, header http.Header) (string, error) {
	body, _, err := GetFinal(ctx, client, url, header)
	return body, err
}

// GetFinal is Get that also reports the URL reached after redirects.
func GetFinal(ctx context.Context, client *http.Client, url string, header http.Header) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", "", fmt.Errorf("read body: %w", err)
	}
	return string(data), resp.Request.URL.String(), nil
}
