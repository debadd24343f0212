// Package app runs one pass of the pipeline: collect, normalize, filter
// against the ledger, dedupe, classify, rank, select and hand off.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/ainews/internal/classify"
	"github.com/deusflow/ainews/internal/collector"
	"github.com/deusflow/ainews/internal/dedupe"
	"github.com/deusflow/ainews/internal/handoff"
	"github.com/deusflow/ainews/internal/metrics"
	"github.com/deusflow/ainews/internal/news"
	"github.com/deusflow/ainews/internal/normalize"
	"github.com/deusflow/ainews/internal/rank"
	"github.com/deusflow/ainews/internal/storage"
)

var ErrNoHandoff = errors.New("delivery enabled but no handoff configured")

// Ledger is the durable state a run reads and writes.
type Ledger interface {
	LoadSeen(ctx context.Context, window time.Duration) (map[string]bool, error)
	MarkSeen(ctx context.Context, items []storage.SeenItem) error
	LogRun(ctx context.Context, status string, metrics any, errMsg string) error
	HasRecentSuccessfulDelivery(ctx context.Context, window time.Duration) (bool, error)
}

// Deliverer receives the final selection when delivery is enabled.
type Deliverer interface {
	Deliver(ctx context.Context, b handoff.Batch) error
}

type Settings struct {
	Lookback        time.Duration
	SeenWindow      time.Duration
	RelaxWindow     time.Duration
	TitleSimilarity float64
	Quota           rank.Quota
	Weights         rank.Weights
	DeliveryEnabled bool
}

type Pipeline struct {
	fetcher    collector.Fetcher
	classifier *classify.Classifier
	ranker     *rank.Ranker
	ledger     Ledger
	delivery   Deliverer
	health     *metrics.Health
	settings   Settings
	now        func() time.Time
	logger     *slog.Logger
}

// Deps are the collaborators of a Pipeline. Classifier, Delivery and
// Health may be nil.
type Deps struct {
	Fetcher    collector.Fetcher
	Classifier *classify.Classifier
	Ledger     Ledger
	Delivery   Deliverer
	Health     *metrics.Health
}

func NewPipeline(deps Deps, settings Settings, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Classifier == nil {
		deps.Classifier = classify.New(nil, logger)
	}
	if deps.Health == nil {
		deps.Health = metrics.NewHealth()
	}
	if settings.Weights.MaxRecency == 0 {
		settings.Weights = rank.DefaultWeights
	}
	return &Pipeline{
		fetcher:    deps.Fetcher,
		classifier: deps.Classifier,
		ranker:     rank.New(settings.Weights),
		ledger:     deps.Ledger,
		delivery:   deps.Delivery,
		health:     deps.Health,
		settings:   settings,
		now:        time.Now,
		logger:     logger.With("component", "pipeline"),
	}
}

// Result is what one run produced.
type Result struct {
	Selected []news.RankedItem
	Metrics  *metrics.Run
}

// Run executes the pipeline once. Ledger and delivery failures abort the
// run; the run record is still written on a best-effort basis.
func (p *Pipeline) Run(ctx context.Context, sources []news.SourceConfig) (Result, error) {
	start := p.now()
	run := metrics.NewRun(len(sources), p.settings.DeliveryEnabled)

	selected, err := p.run(ctx, sources, run, start)
	// the run record outlives a cancelled run
	recordCtx := context.WithoutCancel(ctx)
	if err != nil {
		p.logger.Error("run failed", "error", err)
		if logErr := p.ledger.LogRun(recordCtx, storage.StatusFailed, run, err.Error()); logErr != nil {
			p.logger.Error("failed to record failed run", "error", logErr)
		}
		p.health.RecordRun(run, p.now().Sub(start), err)
		return Result{Metrics: run}, err
	}

	if err := p.ledger.LogRun(recordCtx, storage.StatusSuccess, run, ""); err != nil {
		err = fmt.Errorf("record run: %w", err)
		p.health.RecordRun(run, p.now().Sub(start), err)
		return Result{Selected: selected, Metrics: run}, err
	}
	p.health.RecordRun(run, p.now().Sub(start), nil)
	p.logger.Info("run finished",
		"selected", run.SelectedCount,
		"raw", run.RawCount,
		"source_errors", len(run.SourceErrors),
		"duration", p.now().Sub(start))
	return Result{Selected: selected, Metrics: run}, nil
}

func (p *Pipeline) run(ctx context.Context, sources []news.SourceConfig, run *metrics.Run, now time.Time) ([]news.RankedItem, error) {
	if p.settings.DeliveryEnabled && p.delivery == nil {
		return nil, ErrNoHandoff
	}

	collected := collector.CollectAll(ctx, p.fetcher, sources, p.logger)
	run.RawCount = len(collected.Items)
	for name, msg := range collected.Errors {
		run.SourceErrors[name] = msg
	}
	for name, n := range collected.RawCounts {
		run.SourceRawCounts[name] = n
	}

	normalized, stats := normalize.Items(collected.Items, now.Add(-p.settings.Lookback), now)
	run.NormalizedCount = len(normalized)
	for name, n := range stats.WindowHits {
		run.SourceWindowHits[name] = n
	}
	for reason, n := range stats.Rejected {
		run.Rejected[string(reason)] = n
	}

	fresh, err := p.filterSeen(ctx, normalized, run)
	if err != nil {
		return nil, err
	}

	deduped := dedupe.Items(fresh, p.settings.TitleSimilarity)
	run.DedupedCount = len(deduped)

	classified := p.classifier.Items(ctx, deduped)
	for _, it := range classified {
		run.Classification[string(it.ClassificationSource)]++
	}

	ranked := p.ranker.Rank(classified, now)
	selected := rank.Select(ranked, p.settings.Quota)
	run.SelectedCount = len(selected)

	if !p.settings.DeliveryEnabled {
		p.logger.Info("delivery disabled, selection not handed off", "selected", len(selected))
		return selected, nil
	}
	if len(selected) == 0 {
		p.logger.Info("nothing selected, skipping handoff")
		return selected, nil
	}

	if err := p.delivery.Deliver(ctx, handoff.Batch{RunAt: now, Items: selected, Metrics: run}); err != nil {
		return nil, fmt.Errorf("deliver: %w", err)
	}

	seen := make([]storage.SeenItem, 0, len(selected))
	for _, it := range selected {
		seen = append(seen, storage.SeenItem{ItemID: it.ItemID, CanonicalURL: it.CanonicalURL})
	}
	if err := p.ledger.MarkSeen(ctx, seen); err != nil {
		return nil, fmt.Errorf("mark seen: %w", err)
	}
	return selected, nil
}

// filterSeen drops items already recorded in the ledger. When that leaves
// nothing and no run delivered a selection within the relax window, the
// unfiltered set is used for this run.
func (p *Pipeline) filterSeen(ctx context.Context, items []news.NormalizedItem, run *metrics.Run) ([]news.NormalizedItem, error) {
	seen, err := p.ledger.LoadSeen(ctx, p.settings.SeenWindow)
	if err != nil {
		return nil, fmt.Errorf("load seen: %w", err)
	}

	fresh := make([]news.NormalizedItem, 0, len(items))
	for _, it := range items {
		if seen[it.ItemID] {
			continue
		}
		fresh = append(fresh, it)
	}
	run.LedgerFilteredCount = len(items) - len(fresh)

	if len(fresh) > 0 || len(items) == 0 {
		return fresh, nil
	}

	delivered, err := p.ledger.HasRecentSuccessfulDelivery(ctx, p.settings.RelaxWindow)
	if err != nil {
		return nil, fmt.Errorf("check recent delivery: %w", err)
	}
	if delivered {
		p.logger.Info("all items already seen", "filtered", run.LedgerFilteredCount)
		return fresh, nil
	}

	p.logger.Warn("ledger filtered every item and nothing was delivered recently, relaxing",
		"filtered", run.LedgerFilteredCount, "window", p.settings.RelaxWindow)
	run.LedgerRelaxed = true
	return items, nil
}
