package services

import (
	"context"
	"log/slog"

	"retailcli/internal/loader"
	"retailcli/internal/operations"
)

// ExportService starts refresh runs for the API.
type ExportService struct {
	refresher *operations.Refresher
	source    loader.Source
	logger    *slog.Logger
}

// NewExportService creates the service. source is used when a request names
// no URL of its own.
func NewExportService(logger *slog.Logger, refresher *operations.Refresher, source loader.Source) *ExportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportService{
		refresher: refresher,
		source:    source,
		logger:    logger.With(slog.String("component", "export_service")),
	}
}

// Export runs one refresh. It returns operations.ErrRefreshBusy when another
// run holds the export directory.
func (s *ExportService) Export(ctx context.Context, url string) (*operations.Report, error) {
	src := s.source
	if url != "" {
		src = loader.Source{URL: url}
	}
	s.logger.InfoContext(ctx, "export requested", slog.String("source", src.String()))
	return s.refresher.Run(ctx, src)
}

// LastRun reports the most recent refresh, if any ran.
func (s *ExportService) LastRun() (operations.Snapshot, bool) {
	return s.refresher.Last()
}
