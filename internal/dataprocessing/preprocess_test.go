package dataprocessing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawPurchases(t *testing.T) *Table {
	return buildTable(t, "purchases",
		[]string{" purchase_date ", "Refund_Amount", "purchase_price_w_discount", "vendor_name", "quantity"},
		[]any{"2024-03-04 08:00:00", "1,200.50", "$10.00", " vendorA ", "3"},
		[]any{45355.5, 4.0, 20.0, "vendorB", 1},
		[]any{"not a date", "n/a", "free", "vendorC", nil},
		[]any{nil, nil, nil, nil, nil},
	)
}

func TestPreprocess_TrimsColumnNames(t *testing.T) {
	out := Preprocess(rawPurchases(t))

	assert.Equal(t, []string{"purchase_date", "Refund_Amount", "purchase_price_w_discount", "vendor_name", "quantity"}, out.Columns())
}

func TestPreprocess_CoercesDates(t *testing.T) {
	out := Preprocess(rawPurchases(t))
	dates := out.Column("purchase_date")

	got, ok := dates[0].TimeValue()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC), got)

	got, ok = dates[1].TimeValue()
	require.True(t, ok, "excel serial should become a timestamp")
	assert.Equal(t, time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC), got)

	assert.True(t, dates[2].IsNull(), "unparseable date becomes null")
	assert.True(t, dates[3].IsNull())
}

func TestPreprocess_CoercesPriceAndAmount(t *testing.T) {
	out := Preprocess(rawPurchases(t))

	assert.Equal(t, Number(1200.5), out.Get(0, "Refund_Amount"))
	assert.Equal(t, Number(10), out.Get(0, "purchase_price_w_discount"))
	assert.Equal(t, Number(4), out.Get(1, "Refund_Amount"))
	assert.True(t, out.Get(2, "Refund_Amount").IsNull())
	assert.True(t, out.Get(2, "purchase_price_w_discount").IsNull())
	assert.Equal(t, 4, out.Len(), "rows are never dropped")
}

func TestPreprocess_LeavesOtherColumnsAlone(t *testing.T) {
	out := Preprocess(rawPurchases(t))

	assert.Equal(t, String(" vendorA "), out.Get(0, "vendor_name"))
	assert.Equal(t, String("3"), out.Get(0, "quantity"))
}

func TestPreprocess_DoesNotModifyInput(t *testing.T) {
	in := rawPurchases(t)
	Preprocess(in)

	assert.Equal(t, " purchase_date ", in.Columns()[0])
	assert.Equal(t, String("$10.00"), in.Get(0, "purchase_price_w_discount"))
}

func TestPreprocess_Idempotent(t *testing.T) {
	once := Preprocess(rawPurchases(t))
	twice := Preprocess(once)

	a, err := json.Marshal(once)
	require.NoError(t, err)
	b, err := json.Marshal(twice)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, once.Records(), twice.Records())
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
		ok    bool
	}{
		{"2024-03-04", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), true},
		{"2024-03-04T08:30:00Z", time.Date(2024, 3, 4, 8, 30, 0, 0, time.UTC), true},
		{"3/4/2024 17:05", time.Date(2024, 3, 4, 17, 5, 0, 0, time.UTC), true},
		{"3/4/2024 5:05 PM", time.Date(2024, 3, 4, 17, 5, 0, 0, time.UTC), true},
		{"yesterday", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %s", got)
			}
		})
	}
}
