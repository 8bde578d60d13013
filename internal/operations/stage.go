package operations

import (
	"context"

	"retailcli/internal/dataprocessing"
	"retailcli/internal/exporter"
	"retailcli/internal/loader"
)

// Step IDs in execution order.
const (
	StepIDLoad       = "load"
	StepIDPreprocess = "preprocess"
	StepIDEnrich     = "enrich"
	StepIDSummarize  = "summarize"
	StepIDExport     = "export"
)

// RunData is the working set handed from step to step.
type RunData struct {
	Source    loader.Source
	OutputDir string

	Dataset   *loader.Dataset
	Purchases *dataprocessing.Table
	Checkins  *dataprocessing.Table
	Enriched  *dataprocessing.Enriched
	Result    *dataprocessing.Result
	Metadata  *exporter.Metadata
}

// Step is one unit of a refresh.
type Step interface {
	ID() string
	Name() string
	// Execute does the work and returns a short summary for the run state.
	Execute(ctx context.Context, data *RunData) (string, error)
}

// BaseStep holds the identity shared by all steps.
type BaseStep struct {
	id   string
	name string
}

// NewBaseStep creates a BaseStep.
func NewBaseStep(id, name string) BaseStep {
	return BaseStep{id: id, name: name}
}

func (b BaseStep) ID() string   { return b.id }
func (b BaseStep) Name() string { return b.name }
