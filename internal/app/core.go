package app

import (
	"context"
	"fmt"
	"log/slog"

	"retailcli/internal/config"
	"retailcli/internal/dataprocessing"
	"retailcli/internal/exporter"
	"retailcli/internal/files"
	"retailcli/internal/infrastructure"
	"retailcli/internal/loader"
	"retailcli/internal/operations"
	"retailcli/pkg/contracts"
)

// Core is the pipeline shared by the CLI and the web server.
type Core struct {
	Config    *config.Config
	Paths     *config.Paths
	Source    loader.Source
	Loader    *loader.Loader
	Pipeline  *dataprocessing.Pipeline
	Exporter  *exporter.Exporter
	Files     *files.Manager
	Refresher *operations.Refresher
	Metrics   *infrastructure.PipelineMetrics
	Logger    *slog.Logger
}

// NewCore wires the loader, pipeline, exporter and refresher from cfg.
// metrics may be nil.
func NewCore(cfg *config.Config, paths *config.Paths, logger *slog.Logger, metrics *infrastructure.PipelineMetrics) *Core {
	var onLookup func(context.Context, bool)
	if metrics != nil {
		onLookup = metrics.RecordCacheLookup
	}

	l := loader.NewLoader(logger, loader.Options{
		DataDir:       paths.DataDir,
		PrimaryFile:   cfg.Source.PrimaryFile,
		FallbackFile:  cfg.Source.FallbackFile,
		FetchTimeout:  cfg.Source.FetchTimeout,
		CacheTTL:      cfg.Source.CacheTTL,
		CacheEntries:  cfg.Source.CacheEntries,
		OnCacheLookup: onLookup,
	})
	p := dataprocessing.NewPipeline(logger, dataprocessing.AggregatorConfig{
		TopVendors:   cfg.Export.TopVendors,
		TopCustomers: cfg.Export.TopCustomers,
	})
	e := exporter.NewExporter(logger, cfg.Export.BOM)
	fm := files.NewManager(logger)

	refresher := operations.NewRefresher(logger, operations.RefreshConfig{
		OutputDir:   paths.ExportDir,
		KeepBackups: cfg.Export.KeepBackups,
	}, l, p, e, fm, metrics)

	return &Core{
		Config:    cfg,
		Paths:     paths,
		Source:    loader.Source{Path: cfg.Source.Path, URL: cfg.Source.URL},
		Loader:    l,
		Pipeline:  p,
		Exporter:  e,
		Files:     fm,
		Refresher: refresher,
		Metrics:   metrics,
		Logger:    logger,
	}
}

// OTelConfig maps the telemetry settings onto the infrastructure config.
func OTelConfig(cfg config.TelemetryConfig) *infrastructure.OTelConfig {
	metricExporter := "prometheus"
	if !cfg.Metrics {
		metricExporter = "none"
	}
	return &infrastructure.OTelConfig{
		ServiceName:    infrastructure.ServiceName,
		ServiceVersion: contracts.Version,
		Environment:    cfg.Environment,
		TraceExporter:  cfg.TraceExporter,
		MetricExporter: metricExporter,
		EnableMetrics:  cfg.Metrics,
		EnableTracing:  cfg.Tracing,
		SampleRatio:    cfg.SampleRatio,
	}
}

// Bootstrap loads configuration, the logger and telemetry. Both binaries
// start here.
func Bootstrap() (*config.Config, *config.Paths, *slog.Logger, *infrastructure.OTelProviders, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	paths, err := config.ResolvePaths(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	providers, err := infrastructure.InitializeOTel(OTelConfig(cfg.Telemetry), logger)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	return cfg, paths, logger, providers, nil
}
