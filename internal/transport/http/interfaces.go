package http

import (
	"context"

	"retailcli/internal/dataprocessing"
	"retailcli/internal/loader"
	"retailcli/internal/operations"
	"retailcli/internal/services"
	api "retailcli/pkg/contracts/api/v1"
)

// DashboardServiceInterface is the read side of the API.
type DashboardServiceInterface interface {
	Dashboard(ctx context.Context, q api.DashboardQuery) (*services.DashboardView, error)
	Summary(ctx context.Context, name string, q api.DashboardQuery) (*dataprocessing.Table, error)
	Filters(ctx context.Context, q api.DashboardQuery) (*dataprocessing.FilterOptions, error)
	Sample(ctx context.Context, q api.SampleQuery) (*services.SampleView, error)
	CheckSource(ctx context.Context, url string) (*loader.SourceCheck, error)
	InvalidateCache(ctx context.Context, url string) int
}

// ExportServiceInterface starts refresh runs.
type ExportServiceInterface interface {
	Export(ctx context.Context, url string) (*operations.Report, error)
	LastRun() (operations.Snapshot, bool)
}
