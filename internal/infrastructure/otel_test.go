package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"retailcli/internal/shared/testutil"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	return sums
}

func TestPipelineMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	m, err := CreatePipelineMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordHTTPRequest(ctx, "GET", "/api/dashboard", 200, 10*time.Millisecond)
	m.RecordRun(ctx, "refresh", time.Second, nil)
	m.RecordStep(ctx, "load", time.Millisecond, true)
	m.RecordRowsLoaded(ctx, "purchases", 3)
	m.RecordRowsLoaded(ctx, "checkins", 2)
	m.RecordExport(ctx, false)
	m.RecordCacheLookup(ctx, true)
	m.RecordCacheLookup(ctx, false)

	sums := collectSums(t, reader)
	assert.EqualValues(t, 1, sums["http_requests_total"])
	assert.EqualValues(t, 1, sums["pipeline_runs_total"])
	assert.EqualValues(t, 5, sums["pipeline_rows_loaded_total"])
	assert.EqualValues(t, 1, sums["exports_total"])
	assert.EqualValues(t, 2, sums["dataset_cache_lookups_total"])
}

func TestPipelineMetrics_NilSafe(t *testing.T) {
	var m *PipelineMetrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordHTTPRequest(ctx, "GET", "/", 200, 0)
		m.RecordActiveRequest(ctx, 1)
		m.RecordRun(ctx, "dashboard", 0, nil)
		m.RecordStep(ctx, "load", 0, false)
		m.RecordRowsLoaded(ctx, "purchases", 1)
		m.RecordExport(ctx, true)
		m.RecordCacheLookup(ctx, true)
	})
}

func TestInitializeOTel_Prometheus(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	providers, err := InitializeOTel(&OTelConfig{
		ServiceName:    ServiceName,
		ServiceVersion: ServiceVersion,
		Environment:    "test",
		MetricExporter: "prometheus",
		EnableMetrics:  true,
	}, logger)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.PrometheusHTTP)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.Tracer)
	assert.Nil(t, providers.TracerProvider)
}

func TestInitializeOTel_TracingCorrelation(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	providers, err := InitializeOTel(&OTelConfig{
		ServiceName:   ServiceName,
		TraceExporter: "none",
		EnableTracing: true,
		SampleRatio:   1,
	}, logger)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	AddSpanEvent(ctx, "event", map[string]interface{}{"rows": 3, "ok": true})
	SetSpanAttributes(ctx, map[string]interface{}{"table": "purchases"})
	assert.Empty(t, TraceIDFromContext(context.Background()))
}

func TestInitializeOTel_UnsupportedExporter(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	_, err := InitializeOTel(&OTelConfig{MetricExporter: "otlp", EnableMetrics: true}, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported metric exporter")
}
