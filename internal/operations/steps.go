package operations

import (
	"context"
	"fmt"

	"retailcli/internal/dataprocessing"
	"retailcli/internal/exporter"
	"retailcli/internal/infrastructure"
	"retailcli/internal/loader"
)

// LoadStep reads the workbook through the loader.
type LoadStep struct {
	BaseStep
	loader  *loader.Loader
	metrics *infrastructure.PipelineMetrics
}

// NewLoadStep creates the load step. metrics may be nil.
func NewLoadStep(l *loader.Loader, metrics *infrastructure.PipelineMetrics) *LoadStep {
	return &LoadStep{BaseStep: NewBaseStep(StepIDLoad, "Load workbook"), loader: l, metrics: metrics}
}

func (s *LoadStep) Execute(ctx context.Context, data *RunData) (string, error) {
	ds, err := s.loader.Load(ctx, data.Source)
	if err != nil {
		return "", err
	}
	data.Dataset = ds
	s.metrics.RecordRowsLoaded(ctx, "purchases", ds.Purchases.Len())
	s.metrics.RecordRowsLoaded(ctx, "checkins", ds.Checkins.Len())
	infrastructure.SetSpanAttributes(ctx, map[string]interface{}{
		"source":         ds.Source,
		"purchases_rows": ds.Purchases.Len(),
		"checkins_rows":  ds.Checkins.Len(),
		"degraded":       ds.Degraded,
	})
	return fmt.Sprintf("%d purchases, %d check-ins from %s", ds.Purchases.Len(), ds.Checkins.Len(), ds.Source), nil
}

// PreprocessStep normalizes both raw tables.
type PreprocessStep struct {
	BaseStep
	pipeline *dataprocessing.Pipeline
}

func NewPreprocessStep(p *dataprocessing.Pipeline) *PreprocessStep {
	return &PreprocessStep{BaseStep: NewBaseStep(StepIDPreprocess, "Preprocess"), pipeline: p}
}

func (s *PreprocessStep) Execute(ctx context.Context, data *RunData) (string, error) {
	if data.Dataset == nil {
		return "", fmt.Errorf("no dataset loaded")
	}
	data.Purchases, data.Checkins = s.pipeline.Prepare(ctx, data.Dataset.Purchases, data.Dataset.Checkins)
	return fmt.Sprintf("%d purchase columns", len(data.Purchases.Columns())), nil
}

// EnrichStep adds derived columns and performance tables.
type EnrichStep struct {
	BaseStep
	pipeline *dataprocessing.Pipeline
}

func NewEnrichStep(p *dataprocessing.Pipeline) *EnrichStep {
	return &EnrichStep{BaseStep: NewBaseStep(StepIDEnrich, "Enrich"), pipeline: p}
}

func (s *EnrichStep) Execute(ctx context.Context, data *RunData) (string, error) {
	if data.Purchases == nil {
		return "", fmt.Errorf("purchases not preprocessed")
	}
	data.Enriched = s.pipeline.Enrich(ctx, data.Purchases, data.Checkins)
	return fmt.Sprintf("%d vendors, %d customers",
		data.Enriched.VendorPerformance.Len(), data.Enriched.CustomerPerformance.Len()), nil
}

// SummarizeStep builds the summary tables.
type SummarizeStep struct {
	BaseStep
	pipeline *dataprocessing.Pipeline
}

func NewSummarizeStep(p *dataprocessing.Pipeline) *SummarizeStep {
	return &SummarizeStep{BaseStep: NewBaseStep(StepIDSummarize, "Summarize"), pipeline: p}
}

func (s *SummarizeStep) Execute(ctx context.Context, data *RunData) (string, error) {
	if data.Enriched == nil {
		return "", fmt.Errorf("data not enriched")
	}
	summaries := s.pipeline.Summarize(ctx, data.Enriched)
	data.Result = &dataprocessing.Result{Enriched: data.Enriched, Summaries: summaries}
	return fmt.Sprintf("%d summary tables", len(summaries.Names())), nil
}

// ExportStep writes the CSV files and metadata.
type ExportStep struct {
	BaseStep
	exporter *exporter.Exporter
}

func NewExportStep(e *exporter.Exporter) *ExportStep {
	return &ExportStep{BaseStep: NewBaseStep(StepIDExport, "Export"), exporter: e}
}

func (s *ExportStep) Execute(ctx context.Context, data *RunData) (string, error) {
	if data.Result == nil {
		return "", fmt.Errorf("nothing to export")
	}
	source := data.Source.String()
	if data.Dataset != nil {
		source = data.Dataset.Source
	}
	meta, err := s.exporter.Export(ctx, data.OutputDir, data.Result, source)
	if err != nil {
		return "", err
	}
	data.Metadata = meta
	return fmt.Sprintf("%d files", len(meta.FilesExported)), nil
}
