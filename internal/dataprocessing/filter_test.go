package dataprocessing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filterFixture(t *testing.T) (*Table, Bindings) {
	tbl := buildTable(t, "purchases",
		[]string{"purchase_date", "purchase_location", "disp_category", "revenue_subcategory", "purchase_price_w_discount"},
		[]any{ts("2024-01-01 09:00:00"), "Downtown", "Food", "Bakery", 5.0},
		[]any{ts("2024-02-15 23:30:00"), "Uptown", "Food", "Deli", 7.0},
		[]any{ts("2024-03-31 18:00:00"), "Downtown", "Drink", "Coffee", 3.0},
		[]any{nil, "Uptown", "Drink", "Juice", 1.0},
	)
	return tbl, PurchaseSchema.Resolve(tbl)
}

func timePtr(s string) *time.Time {
	v := ts(s)
	return &v
}

func TestFilter_ZeroKeepsEverything(t *testing.T) {
	tbl, b := filterFixture(t)

	assert.True(t, Filter{}.IsZero())
	assert.Equal(t, 4, Filter{}.Apply(tbl, b).Len())
}

func TestFilter_DateRangeIsInclusive(t *testing.T) {
	tbl, b := filterFixture(t)

	f := Filter{From: timePtr("2024-01-01 00:00:00"), To: timePtr("2024-02-15 00:00:00")}
	out := f.Apply(tbl, b)

	require.Equal(t, 2, out.Len(), "late-evening purchase on the end day is kept")
	assert.Equal(t, String("Deli"), out.Get(1, "revenue_subcategory"))
}

func TestFilter_DateRangeDropsNullDates(t *testing.T) {
	tbl, b := filterFixture(t)

	out := Filter{From: timePtr("2023-01-01 00:00:00")}.Apply(tbl, b)

	assert.Equal(t, 3, out.Len())
}

func TestFilter_MultiSelect(t *testing.T) {
	tbl, b := filterFixture(t)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"location", Filter{Locations: []string{"Downtown"}}, 2},
		{"two locations", Filter{Locations: []string{"Downtown", "Uptown"}}, 4},
		{"category", Filter{Categories: []string{"Drink"}}, 2},
		{"category and subcategory", Filter{Categories: []string{"Food"}, Subcategories: []string{"Deli", "Coffee"}}, 1},
		{"unknown location", Filter{Locations: []string{"Airport"}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Apply(tbl, b).Len())
		})
	}
}

func TestFilter_IgnoresAbsentFields(t *testing.T) {
	tbl := buildTable(t, "purchases", []string{"vendor_name"}, []any{"a"}, []any{"b"})
	b := PurchaseSchema.Resolve(tbl)

	out := Filter{Locations: []string{"Downtown"}, From: timePtr("2024-01-01 00:00:00")}.Apply(tbl, b)

	assert.Equal(t, 2, out.Len())
}

func TestFilter_WithPreset(t *testing.T) {
	latest := ts("2024-03-31 18:00:00")

	f := Filter{}.WithPreset(PresetLast30Days, latest)
	require.NotNil(t, f.From)
	assert.Equal(t, ts("2024-03-01 00:00:00"), *f.From)
	assert.Equal(t, ts("2024-03-31 00:00:00"), *f.To)

	f = Filter{}.WithPreset(PresetLast90Days, latest)
	assert.Equal(t, ts("2024-01-01 00:00:00"), *f.From)

	f = f.WithPreset(PresetAll, latest)
	assert.Nil(t, f.From)
	assert.Nil(t, f.To)
}

func TestBuildFilterOptions(t *testing.T) {
	tbl, b := filterFixture(t)

	opts := BuildFilterOptions(tbl, b, nil)
	assert.Equal(t, []string{"Downtown", "Uptown"}, opts.Locations)
	assert.Equal(t, []string{"Drink", "Food"}, opts.Categories)
	assert.Equal(t, []string{"Bakery", "Coffee", "Deli", "Juice"}, opts.Subcategories)
	require.NotNil(t, opts.MinDate)
	assert.Equal(t, ts("2024-01-01 09:00:00"), *opts.MinDate)
	assert.Equal(t, ts("2024-03-31 18:00:00"), *opts.MaxDate)

	opts = BuildFilterOptions(tbl, b, []string{"Drink"})
	assert.Equal(t, []string{"Coffee", "Juice"}, opts.Subcategories)
}

func TestDateRangeAndLatest(t *testing.T) {
	tbl, b := filterFixture(t)

	first, last, ok := DateRange(tbl, b)
	require.True(t, ok)
	assert.Equal(t, ts("2024-01-01 09:00:00"), first)
	assert.Equal(t, ts("2024-03-31 18:00:00"), last)

	latest, ok := LatestTimestamp(tbl, b)
	require.True(t, ok)
	assert.Equal(t, last, latest)

	empty := NewTable("purchases", "vendor_name")
	_, _, ok = DateRange(empty, PurchaseSchema.Resolve(empty))
	assert.False(t, ok)
}
