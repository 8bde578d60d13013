package dataprocessing

import (
	"sort"
	"strings"
)

// group is the set of rows sharing one key.
type group struct {
	key  []Value
	rows []int
}

// keyString renders a composite key for map lookups.
func keyString(key []Value) string {
	var b strings.Builder
	for i, v := range key {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		b.WriteByte(byte('0' + v.Kind))
		b.WriteString(v.Text())
	}
	return b.String()
}

// rowKey reads the key columns of row i. ok is false when any part is null.
func rowKey(t *Table, i int, cols []string) (key []Value, ok bool) {
	key = make([]Value, len(cols))
	for k, c := range cols {
		key[k] = t.Get(i, c)
		if key[k].IsNull() {
			return nil, false
		}
	}
	return key, true
}

// groupBy partitions rows by the given columns, skipping rows with a null key
// part. Groups come back ordered by key.
func groupBy(t *Table, cols ...string) []*group {
	byKey := make(map[string]*group)
	var groups []*group
	for i := 0; i < t.Len(); i++ {
		key, ok := rowKey(t, i, cols)
		if !ok {
			continue
		}
		ks := keyString(key)
		g, seen := byKey[ks]
		if !seen {
			g = &group{key: key}
			byKey[ks] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, i)
	}

	sort.SliceStable(groups, func(a, b int) bool {
		for k := range groups[a].key {
			if c := compareValues(groups[a].key[k], groups[b].key[k]); c != 0 {
				return c < 0
			}
		}
		return false
	})
	return groups
}

// sum adds the numeric cells of col over rows; nulls are skipped.
func sum(t *Table, rows []int, col string) float64 {
	var total float64
	for _, i := range rows {
		if f, ok := t.Get(i, col).Float(); ok {
			total += f
		}
	}
	return total
}

// mean averages the numeric cells of col over rows, or null when there are none.
func mean(t *Table, rows []int, col string) Value {
	var total float64
	var n int
	for _, i := range rows {
		if f, ok := t.Get(i, col).Float(); ok {
			total += f
			n++
		}
	}
	if n == 0 {
		return Null()
	}
	return Number(total / float64(n))
}

// distinct counts the distinct non-null cells of col over rows.
func distinct(t *Table, rows []int, col string) int {
	seen := make(map[string]struct{})
	for _, i := range rows {
		v := t.Get(i, col)
		if v.IsNull() {
			continue
		}
		seen[keyString([]Value{v})] = struct{}{}
	}
	return len(seen)
}

func allRows(t *Table) []int {
	rows := make([]int, t.Len())
	for i := range rows {
		rows[i] = i
	}
	return rows
}

// ratioPct returns 100*num/den, or null when den is zero.
func ratioPct(num, den float64) Value {
	if den == 0 {
		return Null()
	}
	return Number(100 * num / den)
}
