package exporter

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"retailcli/internal/dataprocessing"
)

// currencyMarkers flag money columns by name. currencyExclude holds whole
// words that win over a marker, so TransactionCount is a count while
// purchase_price_w_discount is still money.
var (
	currencyMarkers = []string{"price", "sales", "spent", "profit", "revenue", "cogs", "cost", "amount", "avgtransaction", "averagetransaction"}
	currencyExclude = map[string]bool{"margin": true, "rank": true, "count": true}
)

// columnWords splits snake_case and CamelCase names into lower-case words.
func columnWords(name string) []string {
	var words []string
	var cur []rune
	prevLower := false
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	for _, r := range name {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
			prevLower = false
			continue
		case unicode.IsUpper(r) && prevLower:
			flush()
		}
		cur = append(cur, r)
		prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
	}
	flush()
	return words
}

// isCurrencyColumn reports whether a column holds money.
func isCurrencyColumn(name string) bool {
	for _, w := range columnWords(name) {
		if currencyExclude[w] {
			return false
		}
	}
	lower := strings.ToLower(name)
	for _, m := range currencyMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// formatCurrency formats a money amount with exactly 2 decimal places, so
// 13.4 is written as 13.40.
func formatCurrency(f float64) string {
	return decimal.NewFromFloat(f).StringFixed(2)
}

// formatNumber writes integral values without a fraction and rounds others
// to 6 places to drop float noise.
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return decimal.NewFromFloat(f).Round(6).String()
}

// FormatValue renders one derived cell for CSV output. Nulls are empty and
// timestamps use dataprocessing.TimestampLayout.
func FormatValue(column string, v dataprocessing.Value) string {
	switch v.Kind {
	case dataprocessing.KindNull:
		return ""
	case dataprocessing.KindNumber:
		if isCurrencyColumn(column) {
			return formatCurrency(v.Num)
		}
		return formatNumber(v.Num)
	default:
		return v.Text()
	}
}

// formatRecord renders row i of t. Columns for which isSource reports true
// came from the workbook and keep full precision. isSource may be nil.
func formatRecord(t *dataprocessing.Table, columns []string, i int, isSource func(string) bool) []string {
	row := t.Row(i)
	out := make([]string, len(row))
	for c, v := range row {
		if isSource != nil && isSource(columns[c]) {
			out[c] = v.Text()
			continue
		}
		out[c] = FormatValue(columns[c], v)
	}
	return out
}
