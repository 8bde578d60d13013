package operations

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"retailcli/internal/dataprocessing"
	"retailcli/internal/exporter"
	"retailcli/internal/files"
	"retailcli/internal/loader"
	"retailcli/internal/shared/testutil"
)

type funcStep struct {
	BaseStep
	fn func(ctx context.Context, data *RunData) (string, error)
}

func (s *funcStep) Execute(ctx context.Context, data *RunData) (string, error) {
	return s.fn(ctx, data)
}

func newFuncStep(id string, fn func(ctx context.Context, data *RunData) (string, error)) *funcStep {
	return &funcStep{BaseStep: NewBaseStep(id, id), fn: fn}
}

func newTestRefresher(t *testing.T, outDir string) (*Refresher, loader.Source) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	path := testutil.WriteWorkbook(t, testutil.ThreeRowWorkbook())

	l := loader.NewLoader(logger, loader.Options{})
	p := dataprocessing.NewPipeline(logger, dataprocessing.AggregatorConfig{})
	e := exporter.NewExporter(logger, false)
	r := NewRefresher(logger, RefreshConfig{OutputDir: outDir, KeepBackups: 1}, l, p, e, files.NewManager(logger), nil)
	return r, loader.Source{Path: path}
}

func writeMarker(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("previous"), 0644))
}

func TestRefresher_Run_Success(t *testing.T) {
	out := filepath.Join(t.TempDir(), "powerbi_data")
	r, src := newTestRefresher(t, out)

	report, err := r.Run(context.Background(), src)
	require.NoError(t, err)

	require.NotNil(t, report.Metadata)
	assert.Equal(t, 3, report.Metadata.PurchasesCount)
	assert.Empty(t, report.Backup)
	assert.False(t, report.Restored)
	assert.Equal(t, RunStatusCompleted, report.Run.Status)
	require.Len(t, report.Run.Steps, 5)
	for _, s := range report.Run.Steps {
		assert.Equal(t, StepStatusCompleted, s.Status, s.ID)
		assert.NotEmpty(t, s.Message, s.ID)
	}

	assert.Empty(t, files.MissingFiles(out, DefaultRequiredFiles...))
	assert.NoFileExists(t, filepath.Join(out, "checkins_enhanced.csv"))

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, report.Run.ID, last.ID)
}

func TestRefresher_Run_BacksUpAndPrunes(t *testing.T) {
	out := filepath.Join(t.TempDir(), "powerbi_data")
	r, src := newTestRefresher(t, out)
	writeMarker(t, out)

	first, err := r.Run(context.Background(), src)
	require.NoError(t, err)
	require.NotEmpty(t, first.Backup)
	assert.FileExists(t, filepath.Join(first.Backup, "marker.txt"))
	assert.NoFileExists(t, filepath.Join(out, "marker.txt"))

	second, err := r.Run(context.Background(), src)
	require.NoError(t, err)
	require.NotEmpty(t, second.Backup)
	assert.Equal(t, []string{first.Backup}, second.Pruned)

	backups, err := files.FindBackups(out)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, second.Backup, backups[0].Path)
}

func TestRefresher_Run_RestoresOnFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "powerbi_data")
	logger, logs := testutil.NewTestLogger(t)
	writeMarker(t, out)

	boom := errors.New("disk full")
	steps := []Step{
		newFuncStep("write", func(_ context.Context, data *RunData) (string, error) {
			require.NoError(t, os.MkdirAll(data.OutputDir, 0755))
			require.NoError(t, os.WriteFile(filepath.Join(data.OutputDir, "kpis.csv"), []byte("partial"), 0644))
			return "", boom
		}),
		newFuncStep("never", func(context.Context, *RunData) (string, error) {
			t.Fatal("step after failure ran")
			return "", nil
		}),
	}
	r := NewRefresherWithSteps(logger, RefreshConfig{OutputDir: out, KeepBackups: 1}, steps, nil, nil)

	report, err := r.Run(context.Background(), loader.Source{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "write", opErr.Step)
	assert.Equal(t, ErrorTypeExecution, opErr.Type)

	assert.True(t, report.Restored)
	assert.Equal(t, RunStatusFailed, report.Run.Status)
	assert.Equal(t, StepStatusFailed, report.Run.Steps[0].Status)
	assert.Equal(t, "disk full", report.Run.Steps[0].Error)
	assert.Equal(t, StepStatusSkipped, report.Run.Steps[1].Status)

	assert.FileExists(t, filepath.Join(out, "marker.txt"))
	assert.NoFileExists(t, filepath.Join(out, "kpis.csv"))
	backups, err := files.FindBackups(out)
	require.NoError(t, err)
	assert.Empty(t, backups)
	testutil.AssertLogContains(t, logs, slog.LevelError, "refresh failed")
}

func TestRefresher_Run_VerificationFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "powerbi_data")
	logger, _ := testutil.NewTestLogger(t)

	steps := []Step{
		newFuncStep("write", func(_ context.Context, data *RunData) (string, error) {
			require.NoError(t, os.MkdirAll(data.OutputDir, 0755))
			require.NoError(t, os.WriteFile(filepath.Join(data.OutputDir, "kpis.csv"), []byte("x"), 0644))
			return "wrote kpis", nil
		}),
	}
	r := NewRefresherWithSteps(logger, RefreshConfig{OutputDir: out}, steps, nil, nil)

	report, err := r.Run(context.Background(), loader.Source{})
	require.Error(t, err)

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, ErrorTypeVerification, opErr.Type)
	assert.Contains(t, opErr.Message, "purchases_enhanced.csv")
	assert.Contains(t, opErr.Message, "metadata.json")
	assert.NotContains(t, opErr.Message, "kpis.csv")

	assert.False(t, report.Restored)
	assert.NoDirExists(t, out)
}

func TestRefresher_Run_MissingSourceRestores(t *testing.T) {
	out := filepath.Join(t.TempDir(), "powerbi_data")
	r, _ := newTestRefresher(t, out)
	writeMarker(t, out)

	report, err := r.Run(context.Background(), loader.Source{Path: filepath.Join(t.TempDir(), "missing.xlsx")})
	require.Error(t, err)
	assert.True(t, report.Restored)
	assert.Equal(t, StepStatusFailed, report.Run.Steps[0].Status)
	assert.FileExists(t, filepath.Join(out, "marker.txt"))
}

func TestRefresher_Run_RejectsConcurrentRun(t *testing.T) {
	out := filepath.Join(t.TempDir(), "powerbi_data")
	logger, _ := testutil.NewTestLogger(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	steps := []Step{
		newFuncStep("wait", func(ctx context.Context, _ *RunData) (string, error) {
			close(entered)
			<-release
			return "", errors.New("stopped")
		}),
	}
	r := NewRefresherWithSteps(logger, RefreshConfig{OutputDir: out}, steps, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), loader.Source{})
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first run did not start")
	}

	_, err := r.Run(context.Background(), loader.Source{})
	assert.ErrorIs(t, err, ErrRefreshBusy)

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, RunStatusRunning, last.Status)
	assert.Equal(t, StepStatusActive, last.Steps[0].Status)

	close(release)
	require.Error(t, <-done)
}

func TestRefresher_Run_Cancelled(t *testing.T) {
	out := filepath.Join(t.TempDir(), "powerbi_data")
	r, src := newTestRefresher(t, out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := r.Run(ctx, src)
	require.Error(t, err)
	assert.True(t, IsCancellation(err))

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, ErrorTypeCancelled, opErr.Type)
	for _, s := range report.Run.Steps {
		assert.Equal(t, StepStatusSkipped, s.Status)
	}
}

type recordingObserver struct {
	updates []Snapshot
}

func (o *recordingObserver) RunUpdated(s Snapshot) { o.updates = append(o.updates, s) }

func TestRefresher_Run_NotifiesObserver(t *testing.T) {
	out := filepath.Join(t.TempDir(), "powerbi_data")
	r, src := newTestRefresher(t, out)
	obs := &recordingObserver{}
	r.SetObserver(obs)

	report, err := r.Run(context.Background(), src)
	require.NoError(t, err)

	// run start, a start and an end per step, run finish
	require.Len(t, obs.updates, 1+2*len(r.Steps())+1)
	assert.Equal(t, RunStatusRunning, obs.updates[0].Status)
	assert.Equal(t, StepStatusActive, obs.updates[1].Steps[0].Status)
	assert.Equal(t, StepStatusCompleted, obs.updates[2].Steps[0].Status)

	last := obs.updates[len(obs.updates)-1]
	assert.Equal(t, RunStatusCompleted, last.Status)
	assert.Equal(t, report.Run.ID, last.ID)
}

func TestRefresher_Run_RecordsBackupEvents(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	tests := []struct {
		name   string
		fail   bool
		events []string
	}{
		{"success", false, []string{"export.backed_up"}},
		{"failure", true, []string{"export.backed_up", "export.restored"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "powerbi_data")
			logger, _ := testutil.NewTestLogger(t)
			writeMarker(t, out)

			steps := []Step{newFuncStep("write", func(_ context.Context, data *RunData) (string, error) {
				if tt.fail {
					return "", errors.New("disk full")
				}
				for _, name := range DefaultRequiredFiles {
					require.NoError(t, os.MkdirAll(data.OutputDir, 0755))
					require.NoError(t, os.WriteFile(filepath.Join(data.OutputDir, name), []byte("x"), 0644))
				}
				return "written", nil
			})}
			r := NewRefresherWithSteps(logger, RefreshConfig{OutputDir: out, KeepBackups: 1}, steps, nil, nil)

			report, _ := r.Run(context.Background(), loader.Source{})
			require.NotNil(t, report)

			var events []string
			for _, span := range recorder.Ended() {
				if span.Name() != "operation.refresh" || !hasAttr(span.Attributes(), "run.id", report.Run.ID) {
					continue
				}
				for _, ev := range span.Events() {
					if strings.HasPrefix(ev.Name, "export.") {
						events = append(events, ev.Name)
					}
				}
			}
			assert.Equal(t, tt.events, events)
		})
	}
}

func hasAttr(attrs []attribute.KeyValue, key, value string) bool {
	for _, a := range attrs {
		if string(a.Key) == key && a.Value.AsString() == value {
			return true
		}
	}
	return false
}
