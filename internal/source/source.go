// Package source collects raw items from configured sources. One Adapter
// interprets every SourceConfig; the kind selects the feed, HTML listing or
// platform-profile path.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deusflow/ainews/internal/news"
	"github.com/deusflow/ainews/internal/scraper"
)

// MaxItemsPerCall bounds what one source may contribute to a run.
const MaxItemsPerCall = 30

var (
	ErrUnsupportedKind  = errors.New("unsupported source kind")
	ErrMissingProfileID = errors.New("platform profile source has no profile id")
)

const (
	DefaultNearbyDateDepth      = 5
	DefaultContainerSearchDepth = 8
	DefaultPlatformEndpoint     = "https://mp.weixin.qq.com/mp/profile_ext"
)

type Options struct {
	// NearbyDateDepth is how many ancestors of an anchor are scanned for a
	// date when no date element is found.
	NearbyDateDepth int
	// ContainerSearchDepth bounds the ancestor walk looking for a container
	// holding a date element.
	ContainerSearchDepth int
	// PlatformCookie authenticates platform-profile calls. Empty skips them.
	PlatformCookie   string
	PlatformEndpoint string
	Now              func() time.Time
}

func (o *Options) setDefaults() {
	if o.NearbyDateDepth <= 0 {
		o.NearbyDateDepth = DefaultNearbyDateDepth
	}
	if o.ContainerSearchDepth <= 0 {
		o.ContainerSearchDepth = DefaultContainerSearchDepth
	}
	if o.PlatformEndpoint == "" {
		o.PlatformEndpoint = DefaultPlatformEndpoint
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type Adapter struct {
	client *http.Client
	pages  *scraper.Fetcher
	opts   Options
	logger *slog.Logger
}

// New builds an adapter. pages serves article-page lookups; it is created
// from client when nil.
func New(client *http.Client, pages *scraper.Fetcher, opts Options, logger *slog.Logger) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if pages == nil {
		pages = scraper.New(client, nil, nil, logger)
	}
	opts.setDefaults()
	return &Adapter{
		client: client,
		pages:  pages,
		opts:   opts,
		logger: logger.With("component", "source"),
	}
}

// Collect fetches one source. Item-level problems drop the item; the error
// return is reserved for failures of the whole source.
func (a *Adapter) Collect(ctx context.Context, src news.SourceConfig) ([]news.RawItem, error) {
	a.logger.Info("collecting source", "source", src.Name, "kind", src.Kind)

	switch src.Kind {
	case news.KindFeed:
		return a.collectFeed(ctx, src)
	case news.KindHTML:
		return a.collectHTML(ctx, src)
	case news.KindPlatformProfile:
		return a.collectPlatformProfile(ctx, src)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, src.Kind)
}

func (a *Adapter) now() time.Time {
	return a.opts.Now().UTC()
}

func (a *Adapter) get(ctx context.Context, rawURL string) (string, error) {
	return scraper.Get(ctx, a.client, rawURL, http.Header{"User-Agent": {scraper.DefaultUserAgent}})
}

func (a *Adapter) dropped(src news.SourceConfig, reason, title string, extra ...any) {
	args := append([]any{"source", src.Name, "reason", reason, "title", title}, extra...)
	a.logger.Debug("drop item", args...)
}

// NewHTTPClient builds the per-run client: bounded timeout, redirects
// followed, optional outbound proxy.
func NewHTTPClient(timeout time.Duration, proxy string) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy = strings.TrimSpace(proxy); proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return &http.Client{Timeout: timeout, Transport: transport}, nil
}

func resolveURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}
