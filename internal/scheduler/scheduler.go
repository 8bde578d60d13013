// Package scheduler re-runs the export refresh on a fixed interval while the
// dashboard server is up.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"retailcli/internal/infrastructure"
	"retailcli/internal/loader"
	"retailcli/internal/operations"
)

// Runner performs one refresh.
type Runner interface {
	Run(ctx context.Context, src loader.Source) (*operations.Report, error)
}

// AutoRefresher runs periodic refreshes.
type AutoRefresher struct {
	runner   Runner
	source   loader.Source
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	runs    int
	skipped int
	failed  int
}

// NewAutoRefresher creates a scheduler. timeout bounds each run; zero means
// one interval.
func NewAutoRefresher(runner Runner, source loader.Source, interval, timeout time.Duration, logger *slog.Logger) *AutoRefresher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = interval
	}
	return &AutoRefresher{
		runner:   runner,
		source:   source,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "auto_refresh")),
	}
}

// Start begins ticking. It is a no-op when the interval is not positive or
// the scheduler is already running.
func (a *AutoRefresher) Start(ctx context.Context) {
	if a.interval <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return
	}

	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})
	go a.loop(ctx, a.done)

	a.logger.InfoContext(ctx, "auto refresh started",
		slog.Duration("interval", a.interval),
		slog.String("source", a.source.String()))
}

// Stop halts the scheduler and waits for a run in progress to return.
func (a *AutoRefresher) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel = nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (a *AutoRefresher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

// tick gives each scheduled run its own trace ID so its log lines correlate
// the way request-driven runs do.
func (a *AutoRefresher) tick(ctx context.Context) {
	ctx = infrastructure.EnsureTraceID(ctx)
	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	_, err := a.runner.Run(runCtx, a.source)

	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case errors.Is(err, operations.ErrRefreshBusy):
		a.skipped++
		a.logger.InfoContext(ctx, "auto refresh skipped, a run is in progress")
	case err != nil:
		a.failed++
		a.logger.ErrorContext(ctx, "auto refresh failed", slog.String("error", err.Error()))
	default:
		a.runs++
	}
}

// Stats reports completed, skipped and failed scheduled runs.
func (a *AutoRefresher) Stats() (runs, skipped, failed int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runs, a.skipped, a.failed
}
