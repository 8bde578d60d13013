package dataprocessing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// toValue converts fixture literals into cells.
func toValue(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case string:
		return String(x)
	case int:
		return Int(x)
	case float64:
		return Number(x)
	case time.Time:
		return Timestamp(x)
	default:
		panic("unsupported fixture value")
	}
}

func buildTable(t *testing.T, name string, columns []string, rows ...[]any) *Table {
	t.Helper()
	tbl := NewTable(name, columns...)
	for _, row := range rows {
		cells := make([]Value, len(row))
		for i, v := range row {
			cells[i] = toValue(v)
		}
		require.NoError(t, tbl.Append(cells...))
	}
	return tbl
}

func ts(s string) time.Time {
	parsed, err := time.Parse(TimestampLayout, s)
	if err != nil {
		panic(err)
	}
	return parsed
}

var purchaseColumns = []string{
	"purchase_date", "customer_guid", "vendor_name", "product_name",
	"purchase_location", "quantity", "purchase_price", "purchase_price_w_discount",
}

// threeRowPurchases is the reference scenario after preprocessing.
func threeRowPurchases(t *testing.T) *Table {
	return buildTable(t, "purchases", purchaseColumns,
		[]any{ts("2024-03-04 08:00:00"), "c1", "vendorA", "Coffee", "Downtown", 1, 10.0, 10.0},
		[]any{ts("2024-03-04 08:00:00"), "c2", "vendorA", "Bagel", "Downtown", 2, 20.0, 20.0},
		[]any{ts("2024-03-05 14:00:00"), "c1", "vendorB", "Smoothie", "Uptown", 1, 30.0, 30.0},
	)
}

func enrich(t *testing.T, purchases, checkins *Table) *Enriched {
	t.Helper()
	return NewEnricher(nil).Enrich(context.Background(), purchases, checkins)
}

func column(t *testing.T, tbl *Table, name string) []Value {
	t.Helper()
	require.True(t, tbl.HasColumn(name), "missing column %s", name)
	return tbl.Column(name)
}

func floats(t *testing.T, values []Value) []float64 {
	t.Helper()
	out := make([]float64, len(values))
	for i, v := range values {
		f, ok := v.Float()
		require.True(t, ok, "value %d is not a number: %+v", i, v)
		out[i] = f
	}
	return out
}
