package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailcli/internal/config"
	"retailcli/internal/dataprocessing"
	"retailcli/internal/errors"
	"retailcli/internal/exporter"
	"retailcli/internal/files"
	"retailcli/internal/loader"
	"retailcli/internal/operations"
	"retailcli/internal/shared/testutil"
	api "retailcli/pkg/contracts/api/v1"
)

type fixture struct {
	loader    *loader.Loader
	dashboard *DashboardService
	exports   *ExportService
	source    loader.Source
	outDir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)

	src := loader.Source{Path: testutil.WriteWorkbook(t, testutil.ThreeRowWorkbook())}
	l := loader.NewLoader(logger, loader.Options{CacheTTL: time.Minute})
	p := dataprocessing.NewPipeline(logger, dataprocessing.AggregatorConfig{})
	out := filepath.Join(t.TempDir(), "powerbi_data")
	r := operations.NewRefresher(logger, operations.RefreshConfig{OutputDir: out, KeepBackups: 1},
		l, p, exporter.NewExporter(logger, false), files.NewManager(logger), nil)

	return &fixture{
		loader:    l,
		dashboard: NewDashboardService(logger, l, p, src),
		exports:   NewExportService(logger, r, src),
		source:    src,
		outDir:    out,
	}
}

func kpi(t *testing.T, view *DashboardView, metric string) float64 {
	t.Helper()
	for _, s := range view.Summaries {
		if s.Name != dataprocessing.SummaryKPIs {
			continue
		}
		for i := 0; i < s.Len(); i++ {
			if s.Get(i, dataprocessing.ColMetric).Text() == metric {
				v, ok := s.Get(i, dataprocessing.ColValue).Float()
				require.True(t, ok)
				return v
			}
		}
	}
	t.Fatalf("kpi %q not found", metric)
	return 0
}

func TestDashboardService_Dashboard(t *testing.T) {
	tests := []struct {
		name      string
		query     api.DashboardQuery
		wantRows  int
		wantSales float64
		wantFrom  string
		wantTo    string
	}{
		{name: "unfiltered", wantRows: 3, wantSales: 60},
		{name: "location", query: api.DashboardQuery{Locations: []string{"Uptown"}}, wantRows: 1, wantSales: 30},
		{
			name:      "from day",
			query:     api.DashboardQuery{DateRangeRequest: api.DateRangeRequest{From: "2024-03-05"}},
			wantRows:  1,
			wantSales: 30,
			wantFrom:  "2024-03-05",
		},
		{
			name:      "to day is inclusive",
			query:     api.DashboardQuery{DateRangeRequest: api.DateRangeRequest{To: "2024-03-04"}},
			wantRows:  2,
			wantSales: 30,
			wantTo:    "2024-03-04",
		},
		{
			name:      "preset anchored at newest purchase",
			query:     api.DashboardQuery{Preset: api.PresetLast30Days, DateRangeRequest: api.DateRangeRequest{From: "2030-01-01"}},
			wantRows:  3,
			wantSales: 60,
			wantFrom:  "2024-02-04",
			wantTo:    "2024-03-05",
		},
	}

	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := f.dashboard.Dashboard(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRows, view.Purchases)
			assert.Equal(t, tt.wantSales, kpi(t, view, dataprocessing.MetricTotalSales))
			assert.Equal(t, tt.wantFrom, view.Filter.From)
			assert.Equal(t, tt.wantTo, view.Filter.To)
			assert.False(t, view.HasProfit)
			assert.Equal(t, 0, view.Checkins)
		})
	}
}

func TestDashboardService_ReusesPreparedDataset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.dashboard.prepare(ctx)
	require.NoError(t, err)
	second, err := f.dashboard.prepare(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)

	assert.Equal(t, 1, f.dashboard.InvalidateCache(ctx, ""))
	third, err := f.dashboard.prepare(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestDashboardService_Summary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	top, err := f.dashboard.Summary(ctx, dataprocessing.SummaryTopVendors, api.DashboardQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, top.Len())

	vendors, err := f.dashboard.Summary(ctx, dataprocessing.TableVendorPerformance, api.DashboardQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, vendors.Len())

	_, err = f.dashboard.Summary(ctx, "nope", api.DashboardQuery{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}

func TestDashboardService_FiltersAndSample(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	opts, err := f.dashboard.Filters(ctx, api.DashboardQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Downtown", "Uptown"}, opts.Locations)
	assert.Empty(t, opts.Categories)
	require.NotNil(t, opts.MinDate)
	assert.Equal(t, "2024-03-04", opts.MinDate.Format("2006-01-02"))

	sample, err := f.dashboard.Sample(ctx, api.SampleQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, sample.Total)
	assert.Equal(t, 2, sample.Rows.Len())
	assert.True(t, sample.Rows.HasColumn(dataprocessing.ColTimePeriod))
}

func TestDashboardService_MissingSource(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	l := loader.NewLoader(logger, loader.Options{})
	svc := NewDashboardService(logger, l, dataprocessing.NewPipeline(logger, dataprocessing.AggregatorConfig{}),
		loader.Source{Path: filepath.Join(t.TempDir(), "missing.xlsx")})

	_, err := svc.Dashboard(context.Background(), api.DashboardQuery{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeSourceUnavailable))
}

func TestDashboardService_CheckSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	}))
	defer srv.Close()

	f := newFixture(t)
	res, err := f.dashboard.CheckSource(context.Background(), srv.URL+"/book.xlsx")
	require.NoError(t, err)
	assert.True(t, res.Reachable)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	_, err = f.dashboard.CheckSource(context.Background(), "")
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}

func TestExportService_Export(t *testing.T) {
	f := newFixture(t)

	report, err := f.exports.Export(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, report.Metadata)
	assert.Equal(t, 3, report.Metadata.PurchasesCount)
	assert.FileExists(t, filepath.Join(f.outDir, "kpis.csv"))

	last, ok := f.exports.LastRun()
	require.True(t, ok)
	assert.Equal(t, operations.RunStatusCompleted, last.Status)
}

func TestHealthService_Readiness(t *testing.T) {
	f := newFixture(t)
	logger, _ := testutil.NewTestLogger(t)
	paths := config.Paths{DataDir: t.TempDir(), ExportDir: f.outDir}

	hs := NewHealthService(paths, f.source, f.loader, f.exports, logger)
	status := hs.ReadinessCheck(context.Background())
	assert.Equal(t, StatusReady, status.Status)
	assert.Equal(t, "no export yet", status.Services["export"].Message)

	_, err := f.exports.Export(context.Background(), "")
	require.NoError(t, err)
	status = hs.ReadinessCheck(context.Background())
	assert.Equal(t, StatusReady, status.Status)
	assert.Contains(t, status.Services["refresh"].Message, "completed")

	require.NoError(t, os.Remove(filepath.Join(f.outDir, exporter.MetadataFile)))
	status = hs.ReadinessCheck(context.Background())
	assert.Equal(t, StatusNotReady, status.Status)
	assert.Equal(t, StatusNotReady, status.Services["export"].Status)
}

func TestHealthService_SourceFromDataDir(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	dataDir := t.TempDir()
	paths := config.Paths{DataDir: dataDir, ExportDir: filepath.Join(dataDir, "out")}

	hs := NewHealthService(paths, loader.Source{}, nil, nil, logger)
	assert.Equal(t, StatusNotReady, hs.ReadinessCheck(context.Background()).Services["source"].Status)

	testutil.WriteWorkbookTo(t, filepath.Join(dataDir, loader.DefaultFallbackFile), testutil.ThreeRowWorkbook())
	status := hs.ReadinessCheck(context.Background())
	assert.Equal(t, StatusReady, status.Status)
	assert.Contains(t, status.Services["source"].Message, loader.DefaultFallbackFile)

	assert.Equal(t, StatusAlive, hs.LivenessCheck(context.Background()).Status)
	assert.Equal(t, StatusOK, hs.HealthCheck(context.Background()).Status)
}
