package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deusflow/ainews/internal/cache"
	"github.com/deusflow/ainews/internal/classify"
	"github.com/deusflow/ainews/internal/config"
	"github.com/deusflow/ainews/internal/gemini"
	"github.com/deusflow/ainews/internal/handoff"
	"github.com/deusflow/ainews/internal/metrics"
	"github.com/deusflow/ainews/internal/rank"
	"github.com/deusflow/ainews/internal/ratelimit"
	"github.com/deusflow/ainews/internal/retry"
	"github.com/deusflow/ainews/internal/scraper"
	"github.com/deusflow/ainews/internal/source"
	"github.com/deusflow/ainews/internal/storage"
)

// SettingsFrom maps loaded configuration onto pipeline settings.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		Lookback:        cfg.Lookback(),
		SeenWindow:      cfg.SeenWindow(),
		RelaxWindow:     cfg.RelaxWindow(),
		TitleSimilarity: cfg.TitleSimilarity,
		Quota: rank.Quota{
			Min:          cfg.ItemMin,
			Max:          cfg.ItemMax,
			MixMinEach:   cfg.MixMinEach,
			MaxPerSource: cfg.MaxItemsPerSource,
		},
		Weights:         rank.DefaultWeights,
		DeliveryEnabled: cfg.DeliveryEnabled,
	}
}

// CacheStats exposes page-cache counters on the monitoring endpoint.
func CacheStats(c *cache.Cache) metrics.StatsFunc {
	return func() map[string]interface{} {
		st := c.Stats()
		return map[string]interface{}{"size": st.Size, "hits": st.Hits, "misses": st.Misses}
	}
}

// BudgetStats exposes the Gemini call budget on the monitoring endpoint.
func BudgetStats(b *ratelimit.Budget) metrics.StatsFunc {
	return func() map[string]interface{} {
		used, denied := b.Stats()
		return map[string]interface{}{"used": used, "denied": denied}
	}
}

// Build wires the production collaborators. The returned close function
// releases the ledger and the Gemini client.
func Build(ctx context.Context, cfg *config.Config, health *metrics.Health, logger *slog.Logger) (*Pipeline, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := source.NewHTTPClient(cfg.RequestTimeout, cfg.HTTPProxyURL)
	if err != nil {
		return nil, nil, fmt.Errorf("http client: %w", err)
	}
	if health == nil {
		health = metrics.NewHealth()
	}
	pageCache := cache.New(cfg.PageCacheSize)
	health.Register("page_cache", CacheStats(pageCache))
	pages := scraper.New(client, pageCache, ratelimit.NewHostLimiter(cfg.PageFetchInterval, 2), logger)
	adapter := source.New(client, pages, source.Options{
		NearbyDateDepth:      cfg.NearbyDateDepth,
		ContainerSearchDepth: cfg.ContainerSearchDepth,
		PlatformCookie:       cfg.PlatformCookie,
	}, logger)

	ledger, err := storage.Open(ctx, cfg.DBDriver, cfg.DBDSN, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}
	closers := []func(){func() {
		if err := ledger.Close(); err != nil {
			logger.Error("failed to close ledger", "error", err)
		}
	}}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var fallback classify.Fallback
	if cfg.GeminiAPIKey != "" {
		budget := ratelimit.NewBudget(cfg.MaxGeminiRequests)
		health.Register("gemini_budget", BudgetStats(budget))
		gc, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, gemini.Options{
			Model:  cfg.GeminiModel,
			Budget: budget,
			Retry:  retry.Policy{MaxAttempts: cfg.RetryAttempts, Delay: cfg.RetryDelay, Backoff: true},
		}, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, gc.Close)
		fallback = gc
	} else {
		logger.Info("GEMINI_API_KEY not set, classification uses rules only")
	}

	var delivery Deliverer
	if cfg.HandoffURL != "" {
		delivery = handoff.NewWebhook(cfg.HandoffURL, nil, retry.Policy{
			MaxAttempts: cfg.RetryAttempts,
			Delay:       cfg.RetryDelay,
			Backoff:     true,
		}, logger)
	}

	p := NewPipeline(Deps{
		Fetcher:    adapter,
		Classifier: classify.New(fallback, logger),
		Ledger:     ledger,
		Delivery:   delivery,
		Health:     health,
	}, SettingsFrom(cfg), logger)
	return p, closeAll, nil
}
