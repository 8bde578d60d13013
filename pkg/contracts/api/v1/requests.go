// Package api contains the request and response contracts of the dashboard API.
// Version v1 represents the current stable API version.
package api

// Date range presets accepted by DashboardQuery.Preset.
const (
	PresetLast30Days = "30d"
	PresetLast90Days = "90d"
	PresetAll        = "all"
)

// DateRangeRequest represents a date range in requests. Both ends are
// inclusive calendar days.
type DateRangeRequest struct {
	From string `json:"from,omitempty" query:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `json:"to,omitempty" query:"to" validate:"omitempty,datetime=2006-01-02"`
}

// DashboardQuery selects the purchases every dashboard endpoint works on.
// A preset overrides From and To.
type DashboardQuery struct {
	DateRangeRequest
	Preset        string   `json:"preset,omitempty" query:"preset" validate:"omitempty,oneof=30d 90d all"`
	Locations     []string `json:"locations,omitempty" query:"location" validate:"omitempty,max=200,dive,max=200"`
	Categories    []string `json:"categories,omitempty" query:"category" validate:"omitempty,max=200,dive,max=200"`
	Subcategories []string `json:"subcategories,omitempty" query:"subcategory" validate:"omitempty,max=200,dive,max=200"`
}

// DefaultSampleLimit is used when SampleQuery.Limit is not given.
const DefaultSampleLimit = 20

// SampleQuery asks for the first rows of the filtered enriched purchases.
type SampleQuery struct {
	DashboardQuery
	Limit int `json:"limit" query:"limit" validate:"min=1,max=100"`
}

// SourceCheckRequest asks whether a remote workbook is reachable.
type SourceCheckRequest struct {
	URL string `json:"url" validate:"required,url,max=2048"`
}

// ExportRequest starts a refresh. An empty URL uses the configured source.
type ExportRequest struct {
	URL string `json:"url,omitempty" validate:"omitempty,url,max=2048"`
}

// CacheInvalidateRequest drops cached workbooks. An empty URL drops everything.
type CacheInvalidateRequest struct {
	URL string `json:"url,omitempty" validate:"omitempty,url,max=2048"`
}
