package retrieval

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/liliang-cn/noise/internal/domain"
	"github.com/liliang-cn/noise/internal/transcript"
)

const (
	DefaultMaxItems = 5
	DefaultMaxChars = 6000
)

// Aggregator fans a query out to every source and merges the results
type Aggregator struct {
	sources  []Source
	maxItems int
	maxChars int
	logger   *zap.Logger
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithMaxItems caps how many items each source contributes
func WithMaxItems(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxItems = n
		}
	}
}

// WithMaxChars caps the rendered context text
func WithMaxChars(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxChars = n
		}
	}
}

// NewAggregator creates an aggregator. Sources are rendered in the order given.
func NewAggregator(sources []Source, logger *zap.Logger, opts ...Option) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Aggregator{
		sources:  sources,
		maxItems: DefaultMaxItems,
		maxChars: DefaultMaxChars,
		logger:   logger.Named("retrieval"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Search queries every source concurrently and waits for all of them. A failed
// source yields a result with no items.
func (a *Aggregator) Search(ctx context.Context, query string) []domain.RetrievalResult {
	results := make([]domain.RetrievalResult, len(a.sources))

	// Workers never return an error so one failure cannot stop the others.
	var g errgroup.Group
	for i, src := range a.sources {
		g.Go(func() error {
			items, err := src.Search(ctx, query)
			if err != nil {
				a.logger.Warn("retrieval source failed",
					zap.String("source", string(src.Title())),
					zap.Error(err),
				)
				items = nil
			}
			results[i] = domain.RetrievalResult{
				SourceTitle: src.Title(),
				Items:       items,
				ItemCount:   len(items),
			}
			return nil
		})
	}
	g.Wait()

	return results
}

// GetContext searches all sources and renders the bounded context block. It
// never fails: if every source fails the block is empty.
func (a *Aggregator) GetContext(ctx context.Context, query string) domain.ContextBlock {
	results := a.Search(ctx, query)
	block := a.Render(results)
	a.logger.Debug("context assembled",
		zap.Int("chars", len(block.Text)),
		zap.Int("sections", len(block.Sources)),
	)
	return block
}

// Render merges results in order into a context block
func (a *Aggregator) Render(results []domain.RetrievalResult) domain.ContextBlock {
	var parts []string
	sources := []domain.RAGSource{}

	for _, r := range results {
		if len(r.Items) == 0 {
			continue
		}
		items := r.Items
		if len(items) > a.maxItems {
			items = items[:a.maxItems]
		}
		lines := make([]string, len(items))
		for i, item := range items {
			lines[i] = "- " + strings.TrimSpace(item)
		}
		parts = append(parts, "### "+string(r.SourceTitle)+"\n"+strings.Join(lines, "\n"))
		sources = append(sources, domain.RAGSource{Title: r.SourceTitle, Count: len(r.Items)})
	}

	return domain.ContextBlock{
		Text:    transcript.ClampText(strings.Join(parts, "\n\n"), a.maxChars),
		Sources: sources,
		Results: results,
	}
}
