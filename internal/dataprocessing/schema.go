package dataprocessing

import (
	"sort"
	"strings"
)

// Field is a logical column the pipeline knows how to use.
type Field string

const (
	FieldPurchaseDate    Field = "purchase_date"
	FieldCustomer        Field = "customer"
	FieldVendor          Field = "vendor"
	FieldProduct         Field = "product"
	FieldLocation        Field = "location"
	FieldQuantity        Field = "quantity"
	FieldPrice           Field = "price"
	FieldAdjustedPrice   Field = "adjusted_price"
	FieldUnitCost        Field = "unit_cost"
	FieldCategory        Field = "category"
	FieldSubcategory     Field = "subcategory"
	FieldCheckinDate     Field = "checkin_date"
	FieldCheckinCustomer Field = "checkin_customer"
)

// Schema maps each logical field to the physical column names it may appear
// under, in order of preference.
type Schema map[Field][]string

// PurchaseSchema is the declared layout of the purchases sheet.
var PurchaseSchema = Schema{
	FieldPurchaseDate:  {"purchase_date"},
	FieldCustomer:      {"customer_guid"},
	FieldVendor:        {"vendor_name"},
	FieldProduct:       {"product_name"},
	FieldLocation:      {"purchase_location", "location", "store", "store_name", "site"},
	FieldQuantity:      {"quantity"},
	FieldPrice:         {"purchase_price"},
	FieldAdjustedPrice: {"purchase_price_w_discount"},
	FieldUnitCost:      {"unit_cost"},
	FieldCategory:      {"disp_category"},
	FieldSubcategory:   {"revenue_subcategory"},
}

// CheckinSchema is the declared layout of the check-ins sheet.
var CheckinSchema = Schema{
	FieldCheckinDate:     {"checkin_date"},
	FieldCheckinCustomer: {"customer_name", "customer_guid"},
}

// Bindings records which physical column backs each logical field of one table.
// A field without a binding is absent and every computation that needs it is skipped.
type Bindings struct {
	columns map[Field]string
}

// Resolve binds every field of s to a column of t. Exact names win over
// case-insensitive matches.
func (s Schema) Resolve(t *Table) Bindings {
	b := Bindings{columns: make(map[Field]string, len(s))}
	if t == nil {
		return b
	}

	lower := make(map[string]string, len(t.columns))
	for _, c := range t.columns {
		key := strings.ToLower(strings.TrimSpace(c))
		if _, seen := lower[key]; !seen {
			lower[key] = c
		}
	}

	for field, candidates := range s {
		for _, name := range candidates {
			if t.HasColumn(name) {
				b.columns[field] = name
				break
			}
			if c, ok := lower[strings.ToLower(name)]; ok {
				b.columns[field] = c
				break
			}
		}
	}
	return b
}

// Has reports whether f is bound.
func (b Bindings) Has(f Field) bool {
	_, ok := b.columns[f]
	return ok
}

// Column returns the physical column bound to f.
func (b Bindings) Column(f Field) (string, bool) {
	c, ok := b.columns[f]
	return c, ok
}

// Value returns the cell for f at row i, or null when f is absent.
func (b Bindings) Value(t *Table, i int, f Field) Value {
	c, ok := b.columns[f]
	if !ok {
		return Null()
	}
	return t.Get(i, c)
}

// Missing lists the fields of s that b could not bind, sorted.
func (b Bindings) Missing(s Schema) []Field {
	var out []Field
	for f := range s {
		if !b.Has(f) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
