package dataprocessing

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is how timestamps are rendered as text.
const TimestampLayout = "2006-01-02 15:04:05"

// Kind is the type of a single cell.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindTime
)

// Value is one typed cell. The zero value is null.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Time time.Time
}

// Null returns the missing-value marker.
func Null() Value { return Value{} }

// String wraps s.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number wraps f. NaN and infinities become null.
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	return Value{Kind: KindNumber, Num: f}
}

// Int wraps n as a number.
func Int(n int) Value { return Value{Kind: KindNumber, Num: float64(n)} }

// Timestamp wraps t.
func Timestamp(t time.Time) Value { return Value{Kind: KindTime, Time: t} }

// IsNull reports whether v is the missing-value marker.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Float returns the numeric payload when v is a number.
func (v Value) Float() (float64, bool) {
	if v.Kind != KindNumber {
		return 0, false
	}
	return v.Num, true
}

// TimeValue returns the timestamp payload when v is a timestamp.
func (v Value) TimeValue() (time.Time, bool) {
	if v.Kind != KindTime {
		return time.Time{}, false
	}
	return v.Time, true
}

// Text renders v as plain text; null renders empty.
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindTime:
		return v.Time.Format(TimestampLayout)
	default:
		return ""
	}
}

// Equal compares kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == o.Str
	case KindNumber:
		return v.Num == o.Num
	case KindTime:
		return v.Time.Equal(o.Time)
	default:
		return true
	}
}

// compareValues orders values of the same kind naturally; mixed kinds order by kind.
func compareValues(a, b Value) int {
	if a.Kind != b.Kind {
		return int(a.Kind) - int(b.Kind)
	}
	switch a.Kind {
	case KindString:
		return strings.Compare(a.Str, b.Str)
	case KindNumber:
		switch {
		case a.Num < b.Num:
			return -1
		case a.Num > b.Num:
			return 1
		}
	case KindTime:
		return a.Time.Compare(b.Time)
	}
	return 0
}

// MarshalJSON renders numbers and strings natively, timestamps as RFC 3339 and null as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindTime:
		return json.Marshal(v.Time.Format(time.RFC3339))
	default:
		return []byte("null"), nil
	}
}

// Table is an ordered set of named columns over rows of typed cells.
// Row position is the only row identity.
type Table struct {
	Name    string
	columns []string
	index   map[string]int
	rows    [][]Value
}

// NewTable creates an empty table with the given columns.
func NewTable(name string, columns ...string) *Table {
	t := &Table{Name: name, index: make(map[string]int, len(columns))}
	for _, c := range columns {
		t.addColumnName(c)
	}
	return t
}

func (t *Table) addColumnName(name string) int {
	t.columns = append(t.columns, name)
	t.index[name] = len(t.columns) - 1
	return len(t.columns) - 1
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Len is the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// IsEmpty reports whether the table has no rows.
func (t *Table) IsEmpty() bool { return t.Len() == 0 }

// HasColumn reports whether name is a column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// ColumnIndex returns the position of name.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Append adds a row. Short rows are padded with nulls; long rows are an error.
func (t *Table) Append(row ...Value) error {
	if len(row) > len(t.columns) {
		return fmt.Errorf("table %s: row has %d cells, want at most %d", t.Name, len(row), len(t.columns))
	}
	cells := make([]Value, len(t.columns))
	copy(cells, row)
	t.rows = append(t.rows, cells)
	return nil
}

// mustAppend is Append for rows built to the table's own width.
func (t *Table) mustAppend(row ...Value) {
	if err := t.Append(row...); err != nil {
		panic(err)
	}
}

// Row returns row i. Callers must not retain or modify it.
func (t *Table) Row(i int) []Value { return t.rows[i] }

// Get returns the cell at row i in column col, or null when the column is absent.
func (t *Table) Get(i int, col string) Value {
	c, ok := t.index[col]
	if !ok {
		return Null()
	}
	return t.rows[i][c]
}

// Column returns a copy of the named column, or nil when absent.
func (t *Table) Column(name string) []Value {
	c, ok := t.index[name]
	if !ok {
		return nil
	}
	out := make([]Value, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[c]
	}
	return out
}

// SetColumn replaces the named column or appends it when new.
func (t *Table) SetColumn(name string, values []Value) error {
	if len(values) != len(t.rows) {
		return fmt.Errorf("table %s: column %s has %d values, want %d", t.Name, name, len(values), len(t.rows))
	}
	c, ok := t.index[name]
	if !ok {
		c = t.addColumnName(name)
		for i := range t.rows {
			t.rows[i] = append(t.rows[i], Null())
		}
	}
	for i, v := range values {
		t.rows[i][c] = v
	}
	return nil
}

// RenameColumns maps every column name through fn. A name already taken by an
// earlier column gets a ".N" suffix.
func (t *Table) RenameColumns(fn func(string) string) {
	index := make(map[string]int, len(t.columns))
	for i, c := range t.columns {
		renamed := uniqueName(fn(c), index)
		t.columns[i] = renamed
		index[renamed] = i
	}
	t.index = index
}

func uniqueName(name string, taken map[string]int) string {
	if _, ok := taken[name]; !ok {
		return name
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s.%d", name, n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := NewTable(t.Name, t.columns...)
	out.rows = make([][]Value, len(t.rows))
	for i, row := range t.rows {
		out.rows[i] = append([]Value(nil), row...)
	}
	return out
}

// Filter returns a new table with the rows for which keep returns true.
func (t *Table) Filter(keep func(i int) bool) *Table {
	out := NewTable(t.Name, t.columns...)
	for i, row := range t.rows {
		if keep(i) {
			out.rows = append(out.rows, append([]Value(nil), row...))
		}
	}
	return out
}

// Head returns a copy of the first n rows.
func (t *Table) Head(n int) *Table {
	return t.Filter(func(i int) bool { return i < n })
}

// Records returns each row as a column-name keyed map.
func (t *Table) Records() []map[string]Value {
	out := make([]map[string]Value, len(t.rows))
	for i, row := range t.rows {
		rec := make(map[string]Value, len(t.columns))
		for c, name := range t.columns {
			rec[name] = row[c]
		}
		out[i] = rec
	}
	return out
}

// MarshalJSON renders the table as {"name", "columns", "rows"}.
func (t *Table) MarshalJSON() ([]byte, error) {
	rows := t.rows
	if rows == nil {
		rows = [][]Value{}
	}
	columns := t.columns
	if columns == nil {
		columns = []string{}
	}
	return json.Marshal(struct {
		Name    string    `json:"name"`
		Columns []string  `json:"columns"`
		Rows    [][]Value `json:"rows"`
	}{t.Name, columns, rows})
}
