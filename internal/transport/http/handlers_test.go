package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"retailcli/internal/dataprocessing"
	apierrors "retailcli/internal/errors"
	"retailcli/internal/exporter"
	"retailcli/internal/loader"
	mw "retailcli/internal/middleware"
	"retailcli/internal/operations"
	"retailcli/internal/services"
	"retailcli/internal/shared/testutil"
	api "retailcli/pkg/contracts/api/v1"
)

type MockDashboardService struct {
	mock.Mock
}

func (m *MockDashboardService) Dashboard(ctx context.Context, q api.DashboardQuery) (*services.DashboardView, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.DashboardView), args.Error(1)
}

func (m *MockDashboardService) Summary(ctx context.Context, name string, q api.DashboardQuery) (*dataprocessing.Table, error) {
	args := m.Called(ctx, name, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dataprocessing.Table), args.Error(1)
}

func (m *MockDashboardService) Filters(ctx context.Context, q api.DashboardQuery) (*dataprocessing.FilterOptions, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dataprocessing.FilterOptions), args.Error(1)
}

func (m *MockDashboardService) Sample(ctx context.Context, q api.SampleQuery) (*services.SampleView, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SampleView), args.Error(1)
}

func (m *MockDashboardService) CheckSource(ctx context.Context, url string) (*loader.SourceCheck, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loader.SourceCheck), args.Error(1)
}

func (m *MockDashboardService) InvalidateCache(ctx context.Context, url string) int {
	return m.Called(ctx, url).Int(0)
}

type MockExportService struct {
	mock.Mock
}

func (m *MockExportService) Export(ctx context.Context, url string) (*operations.Report, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*operations.Report), args.Error(1)
}

func (m *MockExportService) LastRun() (operations.Snapshot, bool) {
	args := m.Called()
	return args.Get(0).(operations.Snapshot), args.Bool(1)
}

func newDashboardRouter(t *testing.T, svc DashboardServiceInterface) http.Handler {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	h := NewDashboardHandler(svc, mw.NewValidator(), logger, apierrors.NewErrorHandler(logger, false))
	r := chi.NewRouter()
	r.Mount("/api", h.Routes())
	return r
}

func newExportRouter(t *testing.T, svc ExportServiceInterface) http.Handler {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	h := NewExportHandler(svc, mw.NewValidator(), logger, apierrors.NewErrorHandler(logger, false))
	r := chi.NewRouter()
	r.Mount("/api/exports", h.Routes())
	return r
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestDashboardHandler_GetDashboard(t *testing.T) {
	svc := new(MockDashboardService)
	want := api.DashboardQuery{Preset: api.PresetLast30Days, Locations: []string{"Downtown", "Uptown"}}
	svc.On("Dashboard", mock.Anything, want).Return(&services.DashboardView{
		Source:    "retail_data.xlsx",
		Purchases: 3,
		HasProfit: true,
	}, nil)

	rec := serve(newDashboardRouter(t, svc), http.MethodGet, "/api/dashboard?preset=30d&location=Downtown,Uptown", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.Contains(t, rec.Body.String(), "retail_data.xlsx")
	svc.AssertExpectations(t)
}

func TestDashboardHandler_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		field string
	}{
		{"bad preset", "/api/dashboard?preset=7d", "preset"},
		{"bad from date", "/api/dashboard?from=03/04/2024", "from"},
		{"reversed range", "/api/filters?from=2024-03-05&to=2024-03-04", "to"},
		{"limit too large", "/api/sample?limit=1000", "limit"},
		{"limit not a number", "/api/sample?limit=abc", "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockDashboardService)
			rec := serve(newDashboardRouter(t, svc), http.MethodGet, tt.path, "")

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			assert.Equal(t, "VALIDATION_FAILED", body["error_code"])
			assert.Contains(t, rec.Body.String(), `"`+tt.field+`"`)
			svc.AssertNotCalled(t, "Dashboard", mock.Anything, mock.Anything)
			svc.AssertNotCalled(t, "Filters", mock.Anything, mock.Anything)
			svc.AssertNotCalled(t, "Sample", mock.Anything, mock.Anything)
		})
	}
}

func TestDashboardHandler_GetSummary(t *testing.T) {
	table := dataprocessing.NewTable(dataprocessing.SummaryKPIs, dataprocessing.ColMetric, dataprocessing.ColValue)

	tests := []struct {
		name       string
		summary    string
		table      *dataprocessing.Table
		err        error
		wantStatus int
		wantCode   string
	}{
		{"found", dataprocessing.SummaryKPIs, table, nil, http.StatusOK, ""},
		{"unknown", "nope", nil, apierrors.NewNotFoundError("summary nope"), http.StatusNotFound, "SUMMARY_NOT_FOUND"},
		{"source down", dataprocessing.SummaryTopVendors, nil,
			apierrors.NewSourceUnavailableError("https://example.com/x.xlsx", errors.New("timeout")),
			http.StatusBadGateway, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockDashboardService)
			svc.On("Summary", mock.Anything, tt.summary, api.DashboardQuery{}).Return(tt.table, tt.err)

			rec := serve(newDashboardRouter(t, svc), http.MethodGet, "/api/summaries/"+tt.summary, "")

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeBody(t, rec)["error_code"])
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestDashboardHandler_GetSample_DefaultLimit(t *testing.T) {
	svc := new(MockDashboardService)
	svc.On("Sample", mock.Anything, api.SampleQuery{Limit: api.DefaultSampleLimit}).
		Return(&services.SampleView{Total: 3}, nil)

	rec := serve(newDashboardRouter(t, svc), http.MethodGet, "/api/sample", "")

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	svc.AssertExpectations(t)
}

func TestDashboardHandler_CheckSource(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		svc := new(MockDashboardService)
		svc.On("CheckSource", mock.Anything, "https://example.com/data.xlsx").Return(&loader.SourceCheck{
			URL:        "https://example.com/data.xlsx",
			Reachable:  true,
			StatusCode: http.StatusOK,
			Latency:    20 * time.Millisecond,
		}, nil)

		rec := serve(newDashboardRouter(t, svc), http.MethodPost, "/api/source/check", `{"url":"https://example.com/data.xlsx"}`)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), "example.com")
		svc.AssertExpectations(t)
	})

	t.Run("missing url", func(t *testing.T) {
		svc := new(MockDashboardService)
		rec := serve(newDashboardRouter(t, svc), http.MethodPost, "/api/source/check", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "CheckSource", mock.Anything, mock.Anything)
	})

	t.Run("malformed body", func(t *testing.T) {
		svc := new(MockDashboardService)
		rec := serve(newDashboardRouter(t, svc), http.MethodPost, "/api/source/check", `{"url":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_REQUEST", decodeBody(t, rec)["error_code"])
	})
}

func TestDashboardHandler_InvalidateCache(t *testing.T) {
	svc := new(MockDashboardService)
	svc.On("InvalidateCache", mock.Anything, "").Return(2)

	rec := serve(newDashboardRouter(t, svc), http.MethodPost, "/api/cache/invalidate", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), decodeBody(t, rec)["removed"])
	svc.AssertExpectations(t)
}

func TestExportHandler_StartExport(t *testing.T) {
	report := &operations.Report{
		Run:      operations.Snapshot{ID: "run-1", Status: operations.RunStatusCompleted},
		Metadata: &exporter.Metadata{FilesExported: []string{"kpis.csv"}},
	}

	tests := []struct {
		name       string
		body       string
		url        string
		report     *operations.Report
		err        error
		wantStatus int
		wantCode   string
	}{
		{"default source", "", "", report, nil, http.StatusCreated, ""},
		{"explicit url", `{"url":"https://example.com/data.xlsx"}`, "https://example.com/data.xlsx", report, nil, http.StatusCreated, ""},
		{"busy", "", "", nil, operations.ErrRefreshBusy, http.StatusConflict, "REFRESH_RUNNING"},
		{"verification failed", "", "",
			&operations.Report{Run: operations.Snapshot{ID: "run-2", Status: operations.RunStatusFailed}},
			&operations.OperationError{Type: operations.ErrorTypeVerification, Message: "export is missing kpis.csv"},
			http.StatusInternalServerError, "EXPORT_FAILED"},
		{"source unavailable", "", "",
			&operations.Report{Run: operations.Snapshot{ID: "run-3", Status: operations.RunStatusFailed}},
			operations.NewStepError(operations.StepIDLoad, apierrors.NewSourceUnavailableError("retail_data.xlsx", errors.New("missing"))),
			http.StatusBadGateway, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockExportService)
			svc.On("Export", mock.Anything, tt.url).Return(tt.report, tt.err)

			rec := serve(newExportRouter(t, svc), http.MethodPost, "/api/exports", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeBody(t, rec)["error_code"])
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestExportHandler_StartExport_RejectsBadURL(t *testing.T) {
	svc := new(MockExportService)
	rec := serve(newExportRouter(t, svc), http.MethodPost, "/api/exports", `{"url":"not a url"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Export", mock.Anything, mock.Anything)
}

func TestExportHandler_LastExport(t *testing.T) {
	t.Run("none yet", func(t *testing.T) {
		svc := new(MockExportService)
		svc.On("LastRun").Return(operations.Snapshot{}, false)
		rec := serve(newExportRouter(t, svc), http.MethodGet, "/api/exports/last", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("after a run", func(t *testing.T) {
		svc := new(MockExportService)
		svc.On("LastRun").Return(operations.Snapshot{ID: "run-9", Status: operations.RunStatusCompleted}, true)
		rec := serve(newExportRouter(t, svc), http.MethodGet, "/api/exports/last", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "run-9")
	})
}

func TestNewMetricsHandler(t *testing.T) {
	custom := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	NewMetricsHandler(custom).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	NewMetricsHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
