package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"retailcli/internal/dataprocessing"
	"retailcli/internal/errors"
	"retailcli/internal/loader"
	api "retailcli/pkg/contracts/api/v1"
)

const dateLayout = "2006-01-02"

// DashboardView is the filtered dataset with every summary table.
type DashboardView struct {
	Source    string                  `json:"source"`
	LoadedAt  time.Time               `json:"loaded_at"`
	Degraded  bool                    `json:"degraded"`
	Filter    AppliedFilter           `json:"filter"`
	Purchases int                     `json:"purchases"`
	Checkins  int                     `json:"checkins"`
	HasProfit bool                    `json:"has_profit"`
	Summaries []*dataprocessing.Table `json:"summaries"`
	Vendors   *dataprocessing.Table   `json:"vendor_performance"`
	Customers *dataprocessing.Table   `json:"customer_performance"`
}

// AppliedFilter echoes the filter after presets were resolved.
type AppliedFilter struct {
	From          string   `json:"from,omitempty"`
	To            string   `json:"to,omitempty"`
	Preset        string   `json:"preset,omitempty"`
	Locations     []string `json:"locations,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	Subcategories []string `json:"subcategories,omitempty"`
}

// SampleView is the first rows of the filtered enriched purchases.
type SampleView struct {
	Total int                   `json:"total"`
	Rows  *dataprocessing.Table `json:"rows"`
}

// prepared is a dataset after preprocessing, kept per fingerprint.
type prepared struct {
	fingerprint loader.Fingerprint
	dataset     *loader.Dataset
	purchases   *dataprocessing.Table
	checkins    *dataprocessing.Table
	bindings    dataprocessing.Bindings
}

// DashboardService answers the read side of the API: it loads the workbook
// through the loader cache, filters purchases and runs the pipeline per request.
type DashboardService struct {
	loader   *loader.Loader
	pipeline *dataprocessing.Pipeline
	source   loader.Source
	logger   *slog.Logger

	mu   sync.Mutex
	last *prepared
}

// NewDashboardService creates the service reading from source.
func NewDashboardService(logger *slog.Logger, l *loader.Loader, p *dataprocessing.Pipeline, source loader.Source) *DashboardService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardService{
		loader:   l,
		pipeline: p,
		source:   source,
		logger:   logger.With(slog.String("component", "dashboard_service")),
	}
}

// Source is the configured workbook location.
func (s *DashboardService) Source() loader.Source { return s.source }

// Dashboard runs the pipeline over the filtered purchases.
func (s *DashboardService) Dashboard(ctx context.Context, q api.DashboardQuery) (*DashboardView, error) {
	p, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}
	filter, applied, err := buildFilter(q, p)
	if err != nil {
		return nil, err
	}

	result := s.pipeline.Run(ctx, filter.Apply(p.purchases, p.bindings), p.checkins)
	s.logger.DebugContext(ctx, "dashboard computed",
		slog.Int("purchases", result.Purchases.Len()),
		slog.Int("summaries", len(result.Summaries.Names())))

	return &DashboardView{
		Source:    p.dataset.Source,
		LoadedAt:  p.dataset.LoadedAt,
		Degraded:  p.dataset.Degraded,
		Filter:    applied,
		Purchases: result.Purchases.Len(),
		Checkins:  result.Checkins.Len(),
		HasProfit: result.HasProfit,
		Summaries: result.Summaries.Tables(),
		Vendors:   result.VendorPerformance,
		Customers: result.CustomerPerformance,
	}, nil
}

// Summary returns one named summary table for the filtered purchases.
func (s *DashboardService) Summary(ctx context.Context, name string, q api.DashboardQuery) (*dataprocessing.Table, error) {
	view, err := s.Dashboard(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, t := range view.Summaries {
		if t.Name == name {
			return t, nil
		}
	}
	switch name {
	case dataprocessing.TableVendorPerformance:
		return view.Vendors, nil
	case dataprocessing.TableCustomerPerformance:
		return view.Customers, nil
	}
	return nil, errors.NewNotFoundError(fmt.Sprintf("summary %q", name)).
		WithContext("available", summaryNames(view))
}

// Filters lists the values the dashboard can be filtered on. Subcategories are
// narrowed to the categories in q.
func (s *DashboardService) Filters(ctx context.Context, q api.DashboardQuery) (*dataprocessing.FilterOptions, error) {
	p, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}
	opts := dataprocessing.BuildFilterOptions(p.purchases, p.bindings, q.Categories)
	return &opts, nil
}

// Sample returns the first q.Limit enriched purchases after filtering.
func (s *DashboardService) Sample(ctx context.Context, q api.SampleQuery) (*SampleView, error) {
	p, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}
	filter, _, err := buildFilter(q.DashboardQuery, p)
	if err != nil {
		return nil, err
	}
	enriched := s.pipeline.Enrich(ctx, filter.Apply(p.purchases, p.bindings), p.checkins)
	return &SampleView{Total: enriched.Purchases.Len(), Rows: enriched.Purchases.Head(q.Limit)}, nil
}

// CheckSource checks that a remote workbook URL answers.
func (s *DashboardService) CheckSource(ctx context.Context, url string) (*loader.SourceCheck, error) {
	if url == "" {
		return nil, errors.NewAppValidationError(ErrNoSource.Error())
	}
	return s.loader.Fetcher().Check(ctx, url)
}

// InvalidateCache drops cached workbooks: every entry when url is empty,
// otherwise the entries for that URL.
func (s *DashboardService) InvalidateCache(ctx context.Context, url string) int {
	var removed int
	if url == "" {
		removed = s.loader.Cache().Purge()
	} else {
		removed = s.loader.Invalidate(loader.Source{URL: url})
	}

	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "dataset cache invalidated",
		slog.Int("removed", removed),
		slog.Bool("all", url == ""))
	return removed
}

// prepare loads the dataset and preprocesses it, reusing the previous result
// while the loader returns the same fingerprint.
func (s *DashboardService) prepare(ctx context.Context) (*prepared, error) {
	ds, err := s.loader.Load(ctx, s.source)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last != nil && s.last.fingerprint == ds.Fingerprint && s.last.dataset == ds {
		return s.last, nil
	}

	purchases, checkins := s.pipeline.Prepare(ctx, ds.Purchases, ds.Checkins)
	s.last = &prepared{
		fingerprint: ds.Fingerprint,
		dataset:     ds,
		purchases:   purchases,
		checkins:    checkins,
		bindings:    dataprocessing.PurchaseSchema.Resolve(purchases),
	}
	return s.last, nil
}

// buildFilter turns the query into a pipeline filter. A preset wins over
// explicit dates and is anchored at the newest purchase.
func buildFilter(q api.DashboardQuery, p *prepared) (dataprocessing.Filter, AppliedFilter, error) {
	f := dataprocessing.Filter{
		Locations:     q.Locations,
		Categories:    q.Categories,
		Subcategories: q.Subcategories,
	}
	applied := AppliedFilter{
		Preset:        q.Preset,
		Locations:     q.Locations,
		Categories:    q.Categories,
		Subcategories: q.Subcategories,
	}

	if q.Preset != "" {
		latest, ok := dataprocessing.LatestTimestamp(p.purchases, p.bindings)
		if !ok {
			latest = time.Now()
		}
		f = f.WithPreset(q.Preset, latest)
	} else {
		var err error
		if f.From, err = parseDay("from", q.From); err != nil {
			return f, applied, err
		}
		if f.To, err = parseDay("to", q.To); err != nil {
			return f, applied, err
		}
	}

	if f.From != nil {
		applied.From = f.From.Format(dateLayout)
	}
	if f.To != nil {
		applied.To = f.To.Format(dateLayout)
	}
	return f, applied, nil
}

func parseDay(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, errors.NewAppValidationError(fmt.Sprintf("%s must be YYYY-MM-DD", field)).
			WithContext("field", field)
	}
	return &t, nil
}

func summaryNames(v *DashboardView) []string {
	names := make([]string, 0, len(v.Summaries)+2)
	for _, t := range v.Summaries {
		names = append(names, t.Name)
	}
	return append(names, dataprocessing.TableVendorPerformance, dataprocessing.TableCustomerPerformance)
}
