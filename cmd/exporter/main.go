// Command exporter refreshes the CSV export directory from the retail
// workbook. It exits 1 when the refresh fails; the previous export is then
// left in place.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"retailcli/internal/app"
	"retailcli/internal/config"
	"retailcli/internal/infrastructure"
	"retailcli/internal/loader"
	"retailcli/internal/operations"
	"retailcli/internal/validation"
	"retailcli/pkg/contracts"
)

type options struct {
	source      string
	outDir      string
	keepBackups int
	timeout     time.Duration
	version     bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("exporter", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.source, "source", "", "workbook path or http(s) URL (defaults to RETAIL_SOURCE_URL, then the data directory)")
	fs.StringVar(&opts.outDir, "out", "", "output directory (defaults to export.output_dir)")
	fs.IntVar(&opts.keepBackups, "keep-backups", -1, "backups to keep after a successful run (defaults to export.keep_backups)")
	fs.DurationVar(&opts.timeout, "timeout", 0, "abort the refresh after this long")
	fs.BoolVar(&opts.version, "version", false, "print version and exit")
	return opts, fs.Parse(args)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}
	if opts.version {
		fmt.Fprintln(stdout, contracts.GetFullVersionString())
		return 0
	}

	cfg, paths, logger, providers, err := app.Bootstrap()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer providers.Shutdown(context.Background())
	defer infrastructure.CloseLogFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	return refresh(ctx, opts, cfg, paths, logger, providers, stdout, stderr)
}

func refresh(ctx context.Context, opts options, cfg *config.Config, paths *config.Paths, logger *slog.Logger,
	providers *infrastructure.OTelProviders, stdout, stderr io.Writer) int {
	if opts.outDir != "" {
		abs, err := filepath.Abs(opts.outDir)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		paths.ExportDir = abs
	}
	if opts.keepBackups >= 0 {
		cfg.Export.KeepBackups = opts.keepBackups
	}

	var metrics *infrastructure.PipelineMetrics
	if providers != nil && providers.MeterProvider != nil {
		metrics, _ = infrastructure.CreatePipelineMetrics(providers.Meter)
	}
	core := app.NewCore(cfg, paths, logger, metrics)

	src := core.Source
	if opts.source != "" {
		src = sourceFromFlag(opts.source)
	}

	preflight := validation.NewPreflight(logger)
	if !src.IsRemote() && src.Path != "" {
		if err := preflight.ValidateWorkbook(src.Path); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	if err := preflight.ValidateOutputDirectory(paths.ExportDir); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Loading data from %s\n", src.String())
	report, err := core.Refresher.Run(ctx, src)
	if report != nil {
		printSteps(stdout, report.Run)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if report != nil && report.Restored {
			fmt.Fprintf(stderr, "Previous export restored in %s\n", paths.ExportDir)
		}
		return 1
	}

	csvCount, _ := preflight.CountCSV(paths.ExportDir)
	meta := report.Metadata
	fmt.Fprintf(stdout, "Exported %d CSV files to %s\n", csvCount, paths.ExportDir)
	fmt.Fprintf(stdout, "  purchases: %d\n", meta.PurchasesCount)
	fmt.Fprintf(stdout, "  check-ins: %d\n", meta.CheckinsCount)
	if meta.DateRange != nil {
		fmt.Fprintf(stdout, "  dates:     %s to %s\n", meta.DateRange.Start, meta.DateRange.End)
	}
	fmt.Fprintf(stdout, "  sales:     %s\n", meta.TotalSales.StringFixed(2))
	if report.Backup != "" {
		fmt.Fprintf(stdout, "Previous export kept at %s\n", report.Backup)
	}
	return 0
}

// sourceFromFlag treats http(s) values as URLs and anything else as a path.
func sourceFromFlag(v string) loader.Source {
	lower := strings.ToLower(v)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return loader.Source{URL: v}
	}
	return loader.Source{Path: v}
}

func printSteps(w io.Writer, run operations.Snapshot) {
	for _, s := range run.Steps {
		line := fmt.Sprintf("  [%s] %s", s.Status, s.Name)
		switch {
		case s.Error != "":
			line += ": " + s.Error
		case s.Message != "":
			line += ": " + s.Message
		}
		fmt.Fprintln(w, line)
	}
}
