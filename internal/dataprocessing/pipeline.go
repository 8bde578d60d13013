package dataprocessing

import (
	"context"
	"log/slog"
)

// Result is one full run over a pair of preprocessed tables.
type Result struct {
	*Enriched
	Summaries *Summaries
}

// Pipeline chains preprocessing, enrichment and aggregation.
type Pipeline struct {
	preprocessor *Preprocessor
	enricher     *Enricher
	aggregator   *Aggregator
}

// NewPipeline wires the three stages with a shared logger.
func NewPipeline(logger *slog.Logger, config AggregatorConfig) *Pipeline {
	return &Pipeline{
		preprocessor: NewPreprocessor(logger),
		enricher:     NewEnricher(logger),
		aggregator:   NewAggregator(logger, config),
	}
}

// Prepare preprocesses both raw tables. A nil check-ins table becomes an empty one.
func (p *Pipeline) Prepare(ctx context.Context, purchases, checkins *Table) (*Table, *Table) {
	if checkins == nil {
		checkins = NewTable("checkins")
	}
	return p.preprocessor.Process(ctx, purchases), p.preprocessor.Process(ctx, checkins)
}

// Enrich runs only the enrichment stage.
func (p *Pipeline) Enrich(ctx context.Context, purchases, checkins *Table) *Enriched {
	return p.enricher.Enrich(ctx, purchases, checkins)
}

// Summarize runs only the aggregation stage.
func (p *Pipeline) Summarize(ctx context.Context, data *Enriched) *Summaries {
	return p.aggregator.Summarize(ctx, data)
}

// Run enriches and summarizes already preprocessed tables.
func (p *Pipeline) Run(ctx context.Context, purchases, checkins *Table) *Result {
	enriched := p.Enrich(ctx, purchases, checkins)
	return &Result{Enriched: enriched, Summaries: p.Summarize(ctx, enriched)}
}
