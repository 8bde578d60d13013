package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"retailcli/internal/config"
	"retailcli/internal/exporter"
	"retailcli/internal/files"
	"retailcli/internal/loader"
	"retailcli/pkg/contracts"
)

// Health states reported per check and overall.
const (
	StatusOK       = "ok"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
	StatusAlive    = "alive"
)

// HealthService reports liveness and readiness of the dashboard server.
type HealthService struct {
	paths     config.Paths
	source    loader.Source
	loader    *loader.Loader
	exports   *ExportService
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthService creates the service. l and exports may be nil in tests.
func NewHealthService(paths config.Paths, source loader.Source, l *loader.Loader, exports *ExportService, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		paths:     paths,
		source:    source,
		loader:    l,
		exports:   exports,
		startTime: time.Now(),
		logger:    logger.With(slog.String("component", "health_service")),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	hs.logger.DebugContext(ctx, "health check", slog.Duration("uptime", time.Since(hs.startTime)))
	return HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now(),
		Version:   contracts.Version,
	}
}

// ReadinessCheck looks at the workbook source, the export directory, the
// refresher and the dataset cache.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    StatusReady,
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Services: map[string]ServiceHealth{
			"source": hs.checkSource(),
			"export": hs.checkExport(),
			"cache":  hs.checkCache(),
		},
	}
	if hs.exports != nil {
		status.Services["refresh"] = hs.checkRefresh()
	}

	for _, s := range status.Services {
		if s.Status != StatusReady {
			status.Status = StatusNotReady
			break
		}
	}
	if status.Status != StatusReady {
		hs.logger.WarnContext(ctx, "service not ready", slog.Any("services", status.Services))
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    StatusAlive,
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() contracts.VersionInfo {
	return contracts.GetVersionInfo()
}

// Uptime is the time since the service was created.
func (hs *HealthService) Uptime() time.Duration {
	return time.Since(hs.startTime)
}

func (hs *HealthService) checkSource() ServiceHealth {
	if hs.source.IsRemote() {
		return ServiceHealth{Status: StatusReady, Message: "remote source " + hs.source.String()}
	}
	if hs.source.Path != "" {
		if _, err := os.Stat(hs.source.Path); err != nil {
			return ServiceHealth{Status: StatusNotReady, Message: fmt.Sprintf("workbook %s: %v", hs.source.Path, err)}
		}
		return ServiceHealth{Status: StatusReady, Message: hs.source.Path}
	}

	workbooks, err := files.FindWorkbooks(hs.paths.DataDir)
	if err != nil {
		return ServiceHealth{Status: StatusNotReady, Message: fmt.Sprintf("data directory: %v", err)}
	}
	if len(workbooks) == 0 {
		return ServiceHealth{Status: StatusNotReady, Message: "no workbook in " + hs.paths.DataDir}
	}
	return ServiceHealth{Status: StatusReady, Message: fmt.Sprintf("%d workbook(s), newest %s", len(workbooks), workbooks[0].Name)}
}

// checkExport is ready when no export exists yet or the last one is readable.
func (hs *HealthService) checkExport() ServiceHealth {
	if _, err := os.Stat(hs.paths.ExportDir); os.IsNotExist(err) {
		return ServiceHealth{Status: StatusReady, Message: "no export yet"}
	}
	meta, err := exporter.ReadMetadata(hs.paths.ExportDir)
	if err != nil {
		return ServiceHealth{Status: StatusNotReady, Message: err.Error()}
	}
	return ServiceHealth{Status: StatusReady, Message: "last export " + meta.ExportTimestamp}
}

func (hs *HealthService) checkCache() ServiceHealth {
	if hs.loader == nil {
		return ServiceHealth{Status: StatusReady, Message: "no loader"}
	}
	st := hs.loader.Cache().Stats()
	return ServiceHealth{
		Status:  StatusReady,
		Message: fmt.Sprintf("%d/%d entries, hit ratio %.2f", st.Entries, st.MaxSize, st.HitRatio),
	}
}

func (hs *HealthService) checkRefresh() ServiceHealth {
	last, ok := hs.exports.LastRun()
	if !ok {
		return ServiceHealth{Status: StatusReady, Message: "no refresh run"}
	}
	msg := fmt.Sprintf("last refresh %s: %s", last.ID, last.Status)
	if last.Error != "" {
		msg += " (" + last.Error + ")"
	}
	return ServiceHealth{Status: StatusReady, Message: msg}
}
