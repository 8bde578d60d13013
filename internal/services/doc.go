// Package services sits between the HTTP handlers and the pipeline.
//
// DashboardService loads the workbook through the loader cache, applies the
// request filter and runs the pipeline for each request. ExportService starts
// refresh runs. HealthService reports liveness and readiness.
//
// Services take a *slog.Logger at construction and return AppErrors, which
// the transport layer maps to problem responses.
package services
