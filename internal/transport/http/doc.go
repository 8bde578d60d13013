// Package http holds the chi handlers of the dashboard API.
//
// Handlers decode and validate query parameters or JSON bodies, call a
// service interface and render JSON with go-chi/render. Every failure goes
// through errors.ErrorHandler, which answers with RFC 7807 problem details.
package http
