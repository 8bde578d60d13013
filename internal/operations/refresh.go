package operations

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"retailcli/internal/dataprocessing"
	"retailcli/internal/exporter"
	"retailcli/internal/files"
	"retailcli/internal/infrastructure"
	"retailcli/internal/loader"
)

// DefaultRequiredFiles must exist after every successful export.
var DefaultRequiredFiles = []string{"purchases_enhanced.csv", "kpis.csv", exporter.MetadataFile}

// RefreshConfig configures a Refresher.
type RefreshConfig struct {
	OutputDir     string
	KeepBackups   int
	RequiredFiles []string
}

// Observer is told about every state change of a run: its start, each step
// starting and ending, and the finish. Calls happen on the run's goroutine and
// must not block.
type Observer interface {
	RunUpdated(Snapshot)
}

// Report is the outcome of one refresh.
type Report struct {
	Run      Snapshot           `json:"run"`
	Backup   string             `json:"backup,omitempty"`
	Restored bool               `json:"restored"`
	Pruned   []string           `json:"pruned,omitempty"`
	Metadata *exporter.Metadata `json:"metadata,omitempty"`
	Duration time.Duration      `json:"duration_ns"`
}

// Refresher regenerates the export directory: it moves the current export
// aside, runs load through export, checks the result and either prunes old
// backups or puts the previous export back.
type Refresher struct {
	mu       sync.Mutex
	config   RefreshConfig
	steps    []Step
	files    *files.Manager
	tracer   *RunTracer
	logger   *slog.Logger
	now      func() time.Time
	observer Observer

	lastMu sync.RWMutex
	last   *RunState
}

// NewRefresher wires the standard steps. metrics may be nil.
func NewRefresher(logger *slog.Logger, config RefreshConfig, l *loader.Loader, p *dataprocessing.Pipeline,
	e *exporter.Exporter, fm *files.Manager, metrics *infrastructure.PipelineMetrics) *Refresher {
	steps := []Step{
		NewLoadStep(l, metrics),
		NewPreprocessStep(p),
		NewEnrichStep(p),
		NewSummarizeStep(p),
		NewExportStep(e),
	}
	return NewRefresherWithSteps(logger, config, steps, fm, metrics)
}

// NewRefresherWithSteps creates a refresher running the given steps in order.
func NewRefresherWithSteps(logger *slog.Logger, config RefreshConfig, steps []Step,
	fm *files.Manager, metrics *infrastructure.PipelineMetrics) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if config.OutputDir == "" {
		config.OutputDir = "powerbi_data"
	}
	if config.KeepBackups < 0 {
		config.KeepBackups = 0
	}
	if config.RequiredFiles == nil {
		config.RequiredFiles = DefaultRequiredFiles
	}
	if fm == nil {
		fm = files.NewManager(logger)
	}
	return &Refresher{
		config: config,
		steps:  steps,
		files:  fm,
		tracer: NewRunTracer(metrics),
		logger: logger.With(slog.String("component", "refresher")),
		now:    time.Now,
	}
}

// SetObserver registers o for run updates. Call it before the first Run.
func (r *Refresher) SetObserver(o Observer) { r.observer = o }

func (r *Refresher) notify(state *RunState) {
	if r.observer != nil {
		r.observer.RunUpdated(state.Snapshot())
	}
}

// Steps lists the configured steps.
func (r *Refresher) Steps() []Step { return append([]Step(nil), r.steps...) }

// Last returns the state of the most recent run, if any.
func (r *Refresher) Last() (Snapshot, bool) {
	r.lastMu.RLock()
	defer r.lastMu.RUnlock()
	if r.last == nil {
		return Snapshot{}, false
	}
	return r.last.Snapshot(), true
}

// Run performs one refresh from src. Only one run proceeds at a time; a
// concurrent call gets ErrRefreshBusy. On failure the previous export, if
// there was one, is restored and the returned report says so.
func (r *Refresher) Run(ctx context.Context, src loader.Source) (*Report, error) {
	if !r.mu.TryLock() {
		return nil, ErrRefreshBusy
	}
	defer r.mu.Unlock()

	start := r.now()
	state := NewRunState(uuid.NewString(), r.steps)
	r.lastMu.Lock()
	r.last = state
	r.lastMu.Unlock()

	ctx, span := r.tracer.TraceRun(ctx, state.ID(), src.String(), r.config.OutputDir)
	logger := r.logger.With(slog.String("run_id", state.ID()))
	logger.InfoContext(ctx, "refresh started",
		slog.String("source", src.String()),
		slog.String("output_dir", r.config.OutputDir))

	state.start(start)
	r.notify(state)
	report := &Report{}

	err := r.run(ctx, logger, src, state, report)
	report.Duration = r.now().Sub(start)
	state.finish(r.now(), err)
	report.Run = state.Snapshot()
	r.notify(state)
	r.tracer.EndRun(ctx, span, report.Duration, err)

	if err != nil {
		logger.ErrorContext(ctx, "refresh failed",
			slog.String("error", err.Error()),
			slog.Bool("restored", report.Restored),
			slog.Duration("duration", report.Duration))
		return report, err
	}
	logger.InfoContext(ctx, "refresh complete",
		slog.Int("files", len(report.Metadata.FilesExported)),
		slog.Int("pruned_backups", len(report.Pruned)),
		slog.Duration("duration", report.Duration))
	return report, nil
}

func (r *Refresher) run(ctx context.Context, logger *slog.Logger, src loader.Source, state *RunState, report *Report) error {
	dir := r.config.OutputDir

	backup, err := r.files.Backup(dir)
	if err != nil {
		for i := range r.steps {
			state.update(i, func(s *StepState) { s.Skip("backup failed") })
		}
		return &OperationError{Type: ErrorTypeBackup, Message: "back up previous export", Cause: err}
	}
	report.Backup = backup
	if backup != "" {
		infrastructure.AddSpanEvent(ctx, "export.backed_up", map[string]interface{}{"backup": backup})
	}

	data := &RunData{Source: src, OutputDir: dir}
	if err = r.runSteps(ctx, logger, state, data); err == nil {
		err = r.verify(dir)
	}

	if err != nil {
		report.Restored = r.rollback(ctx, logger, backup, dir)
		return err
	}

	report.Metadata = data.Metadata
	pruned, pruneErr := r.files.PruneBackups(dir, r.config.KeepBackups)
	if pruneErr != nil {
		logger.WarnContext(ctx, "backup pruning incomplete", slog.String("error", pruneErr.Error()))
	}
	report.Pruned = pruned
	return nil
}

func (r *Refresher) runSteps(ctx context.Context, logger *slog.Logger, state *RunState, data *RunData) error {
	for i, step := range r.steps {
		if err := ctx.Err(); err != nil {
			r.skipFrom(state, i, "cancelled")
			return NewStepError(step.ID(), err)
		}

		stepCtx, span := r.tracer.TraceStep(ctx, state.ID(), step)
		started := r.now()
		state.update(i, func(s *StepState) { s.Start(started) })
		r.notify(state)

		message, err := step.Execute(stepCtx, data)
		ended := r.now()
		r.tracer.EndStep(stepCtx, span, step, ended.Sub(started), err)

		if err != nil {
			state.update(i, func(s *StepState) { s.Fail(ended, err) })
			r.skipFrom(state, i+1, "previous step failed")
			r.notify(state)
			logger.ErrorContext(ctx, "step failed",
				slog.String("step", step.ID()),
				slog.String("error", err.Error()))
			return NewStepError(step.ID(), err)
		}

		state.update(i, func(s *StepState) {
			s.Complete(ended, message)
			s.Metadata["duration_ms"] = ended.Sub(started).Milliseconds()
		})
		r.notify(state)
		logger.DebugContext(ctx, "step completed",
			slog.String("step", step.ID()),
			slog.String("result", message),
			slog.Duration("duration", ended.Sub(started)))
	}
	return nil
}

func (r *Refresher) skipFrom(state *RunState, from int, reason string) {
	for j := from; j < len(r.steps); j++ {
		state.update(j, func(s *StepState) { s.Skip(reason) })
	}
}

func (r *Refresher) verify(dir string) error {
	missing := files.MissingFiles(dir, r.config.RequiredFiles...)
	if len(missing) == 0 {
		return nil
	}
	return &OperationError{
		Type:    ErrorTypeVerification,
		Message: fmt.Sprintf("export is missing %s", strings.Join(missing, ", ")),
	}
}

// rollback puts the backup back in place. Without a backup the partial output
// is removed so no half-written export is left behind.
func (r *Refresher) rollback(ctx context.Context, logger *slog.Logger, backup, dir string) bool {
	if backup == "" {
		if err := os.RemoveAll(dir); err != nil {
			logger.ErrorContext(ctx, "partial export not removed", slog.String("error", err.Error()))
		}
		return false
	}
	if err := r.files.Restore(backup, dir); err != nil {
		logger.ErrorContext(ctx, "restore failed",
			slog.String("backup", backup),
			slog.String("error", err.Error()))
		return false
	}
	infrastructure.AddSpanEvent(ctx, "export.restored", map[string]interface{}{"backup": backup})
	return true
}
