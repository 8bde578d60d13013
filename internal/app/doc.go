// Package app wires configuration, telemetry, the pipeline and the HTTP
// layer together.
//
// Bootstrap loads the layered configuration, the slog logger and the
// OpenTelemetry providers. NewCore builds the loader, pipeline, exporter and
// refresher shared by both binaries; New adds the services and the chi router
// of the dashboard server.
//
// Middleware order is RequestID, RealIP, telemetry, logging, recovery and
// timeout. Health checks sit outside the rate limiter.
//
// Initialization errors are returned to the caller. Run blocks until SIGINT
// or SIGTERM and then shuts the server down gracefully.
package app
