package api

import "time"

// CacheInvalidateResponse reports how many cached workbooks were dropped.
type CacheInvalidateResponse struct {
	Removed int `json:"removed"`
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}
