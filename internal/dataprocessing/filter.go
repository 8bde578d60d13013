package dataprocessing

import (
	"sort"
	"time"
)

// Date range presets.
const (
	PresetLast30Days = "30d"
	PresetLast90Days = "90d"
	PresetAll        = "all"
)

// Filter subsets the purchases table before enrichment. Empty selections
// match everything.
type Filter struct {
	From          *time.Time
	To            *time.Time
	Locations     []string
	Categories    []string
	Subcategories []string
}

// IsZero reports whether f selects every row.
func (f Filter) IsZero() bool {
	return f.From == nil && f.To == nil &&
		len(f.Locations) == 0 && len(f.Categories) == 0 && len(f.Subcategories) == 0
}

// WithPreset sets the date range relative to latest: the last 30 or 90 days
// ending at latest's day, or everything.
func (f Filter) WithPreset(preset string, latest time.Time) Filter {
	var days int
	switch preset {
	case PresetLast30Days:
		days = 30
	case PresetLast90Days:
		days = 90
	default:
		f.From, f.To = nil, nil
		return f
	}
	end := startOfDay(latest)
	from := end.AddDate(0, 0, -days)
	f.From, f.To = &from, &end
	return f
}

// Apply returns the rows of t matching f. The date bound is inclusive of the
// whole To day. Filters on fields absent from b are ignored.
func (f Filter) Apply(t *Table, b Bindings) *Table {
	if f.IsZero() {
		return t.Clone()
	}

	var dateCol string
	hasDate := false
	if f.From != nil || f.To != nil {
		dateCol, hasDate = b.Column(FieldPurchaseDate)
	}
	var toExclusive time.Time
	if f.To != nil {
		toExclusive = startOfDay(*f.To).AddDate(0, 0, 1)
	}

	matchers := []struct {
		field  Field
		values []string
	}{
		{FieldLocation, f.Locations},
		{FieldCategory, f.Categories},
		{FieldSubcategory, f.Subcategories},
	}

	type setFilter struct {
		col string
		set map[string]struct{}
	}
	var sets []setFilter
	for _, m := range matchers {
		if len(m.values) == 0 {
			continue
		}
		col, ok := b.Column(m.field)
		if !ok {
			continue
		}
		set := make(map[string]struct{}, len(m.values))
		for _, v := range m.values {
			set[v] = struct{}{}
		}
		sets = append(sets, setFilter{col, set})
	}

	return t.Filter(func(i int) bool {
		if hasDate {
			ts, ok := t.Get(i, dateCol).TimeValue()
			if !ok {
				return false
			}
			if f.From != nil && ts.Before(startOfDay(*f.From)) {
				return false
			}
			if f.To != nil && !ts.Before(toExclusive) {
				return false
			}
		}
		for _, s := range sets {
			if _, ok := s.set[t.Get(i, s.col).Text()]; !ok {
				return false
			}
		}
		return true
	})
}

// FilterOptions lists the values a caller can filter on.
type FilterOptions struct {
	MinDate       *time.Time `json:"min_date,omitempty"`
	MaxDate       *time.Time `json:"max_date,omitempty"`
	Locations     []string   `json:"locations"`
	Categories    []string   `json:"categories"`
	Subcategories []string   `json:"subcategories"`
}

// BuildFilterOptions collects the date bounds and the distinct location,
// category and subcategory values of t. Subcategories are limited to the
// selected categories when any are given.
func BuildFilterOptions(t *Table, b Bindings, selectedCategories []string) FilterOptions {
	opts := FilterOptions{
		Locations:     distinctText(t, b, FieldLocation, nil),
		Categories:    distinctText(t, b, FieldCategory, nil),
		Subcategories: []string{},
	}

	if col, ok := b.Column(FieldPurchaseDate); ok {
		for i := 0; i < t.Len(); i++ {
			ts, ok := t.Get(i, col).TimeValue()
			if !ok {
				continue
			}
			if opts.MinDate == nil || ts.Before(*opts.MinDate) {
				v := ts
				opts.MinDate = &v
			}
			if opts.MaxDate == nil || ts.After(*opts.MaxDate) {
				v := ts
				opts.MaxDate = &v
			}
		}
	}

	var keep func(i int) bool
	if catCol, ok := b.Column(FieldCategory); ok && len(selectedCategories) > 0 {
		set := make(map[string]struct{}, len(selectedCategories))
		for _, c := range selectedCategories {
			set[c] = struct{}{}
		}
		keep = func(i int) bool {
			_, ok := set[t.Get(i, catCol).Text()]
			return ok
		}
	}
	opts.Subcategories = distinctText(t, b, FieldSubcategory, keep)
	return opts
}

// LatestTimestamp returns the newest purchase timestamp in t.
func LatestTimestamp(t *Table, b Bindings) (time.Time, bool) {
	col, ok := b.Column(FieldPurchaseDate)
	if !ok {
		return time.Time{}, false
	}
	var latest time.Time
	found := false
	for i := 0; i < t.Len(); i++ {
		if ts, ok := t.Get(i, col).TimeValue(); ok && (!found || ts.After(latest)) {
			latest, found = ts, true
		}
	}
	return latest, found
}

// DateRange returns the oldest and newest purchase timestamps in t.
func DateRange(t *Table, b Bindings) (first, last time.Time, ok bool) {
	opts := BuildFilterOptions(t, b, nil)
	if opts.MinDate == nil {
		return time.Time{}, time.Time{}, false
	}
	return *opts.MinDate, *opts.MaxDate, true
}

func distinctText(t *Table, b Bindings, f Field, keep func(int) bool) []string {
	out := []string{}
	col, ok := b.Column(f)
	if !ok {
		return out
	}
	seen := make(map[string]struct{})
	for i := 0; i < t.Len(); i++ {
		if keep != nil && !keep(i) {
			continue
		}
		v := t.Get(i, col)
		if v.IsNull() {
			continue
		}
		s := v.Text()
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
