// Package collector fans collection out over all enabled sources.
package collector

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/ainews/internal/news"
)

// MaxWorkers caps concurrent source fetches.
const MaxWorkers = 8

// Fetcher collects one source.
type Fetcher interface {
	Collect(ctx context.Context, src news.SourceConfig) ([]news.RawItem, error)
}

// Result merges what all sources produced. Items keep per-source order;
// there is no order across sources.
type Result struct {
	Items     []news.RawItem
	Errors    map[string]string
	RawCounts map[string]int
}

type outcome struct {
	source string
	items  []news.RawItem
	err    error
}

// CollectAll runs every source on a bounded pool. A failing source is
// recorded in Result.Errors and never cancels its siblings.
func CollectAll(ctx context.Context, f Fetcher, sources []news.SourceConfig, logger *slog.Logger) Result {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "collector")

	res := Result{
		Errors:    make(map[string]string),
		RawCounts: make(map[string]int, len(sources)),
	}
	if len(sources) == 0 {
		return res
	}

	outcomes := make(chan outcome, len(sources))

	var g errgroup.Group
	g.SetLimit(min(MaxWorkers, max(1, len(sources))))
	for _, src := range sources {
		g.Go(func() error {
			items, err := collectOne(ctx, f, src)
			outcomes <- outcome{source: src.Name, items: items, err: err}
			return nil // never fail the group, errors are reported per source
		})
	}

	go func() {
		_ = g.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		if o.err != nil {
			logger.Warn("source failed", "source", o.source, "error", o.err)
			res.Errors[o.source] = o.err.Error()
			continue
		}
		res.RawCounts[o.source] = len(o.items)
		res.Items = append(res.Items, o.items...)
	}

	logger.Info("collection finished",
		"sources", len(sources),
		"items", len(res.Items),
		"failed", len(res.Errors),
	)
	return res
}

func collectOne(ctx context.Context, f Fetcher, src news.SourceConfig) (items []news.RawItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			items, err = nil, fmt.Errorf("panic collecting %s: %v", src.Name, r)
		}
	}()
	return f.Collect(ctx, src)
}
