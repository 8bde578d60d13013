package dataprocessing

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// timeLayouts are tried in order when a date cell holds text.
var timeLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006",
	"1/2/06 15:04",
	"1/2/06",
	"02-Jan-2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// CoercionStats counts cells that could not be coerced and became null.
type CoercionStats struct {
	DateColumns    []string
	NumericColumns []string
	NulledCells    int
}

// Preprocess trims column names and coerces date-like columns to timestamps and
// price/amount columns to numbers. The input is not modified. Running it on its
// own output returns an identical table.
func Preprocess(t *Table) *Table {
	out, _ := preprocess(t)
	return out
}

func preprocess(t *Table) (*Table, CoercionStats) {
	var stats CoercionStats
	out := t.Clone()
	out.RenameColumns(strings.TrimSpace)

	for c, name := range out.columns {
		lower := strings.ToLower(name)
		var coerce func(Value) Value
		switch {
		case strings.Contains(lower, "date"):
			coerce = coerceTime
			stats.DateColumns = append(stats.DateColumns, name)
		case strings.Contains(lower, "price"), strings.Contains(lower, "amount"):
			coerce = coerceNumber
			stats.NumericColumns = append(stats.NumericColumns, name)
		default:
			continue
		}

		for _, row := range out.rows {
			before := row[c]
			row[c] = coerce(before)
			if row[c].IsNull() && !before.IsNull() {
				stats.NulledCells++
			}
		}
	}
	return out, stats
}

// ParseTimestamp reads s with the accepted layouts.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func coerceTime(v Value) Value {
	switch v.Kind {
	case KindTime, KindNull:
		return v
	case KindNumber:
		t, err := excelize.ExcelDateToTime(v.Num, false)
		if err != nil {
			return Null()
		}
		return Timestamp(t.Round(time.Second))
	default:
		if t, ok := ParseTimestamp(v.Str); ok {
			return Timestamp(t)
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64); err == nil {
			return coerceTime(Number(f))
		}
		return Null()
	}
}

var numberReplacer = strings.NewReplacer(",", "", "$", "", "€", "", "£", "", " ", "")

func coerceNumber(v Value) Value {
	switch v.Kind {
	case KindNumber, KindNull:
		return v
	case KindString:
		s := numberReplacer.Replace(strings.TrimSpace(v.Str))
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Number(f)
		}
		return Null()
	default:
		return Null()
	}
}

// Preprocessor runs Preprocess and logs what it coerced.
type Preprocessor struct {
	logger *slog.Logger
}

// NewPreprocessor creates a preprocessor.
func NewPreprocessor(logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preprocessor{logger: logger.With(slog.String("component", "preprocessor"))}
}

// Process preprocesses t.
func (p *Preprocessor) Process(ctx context.Context, t *Table) *Table {
	out, stats := preprocess(t)
	p.logger.DebugContext(ctx, "table preprocessed",
		slog.String("table", t.Name),
		slog.Int("rows", out.Len()),
		slog.Any("date_columns", stats.DateColumns),
		slog.Any("numeric_columns", stats.NumericColumns),
		slog.Int("nulled_cells", stats.NulledCells))
	return out
}
