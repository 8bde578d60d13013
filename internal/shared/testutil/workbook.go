package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// Sheet is one worksheet of a fixture workbook; the first row is the header.
type Sheet struct {
	Name string
	Rows [][]any
}

// Workbook is an ordered list of sheets.
type Workbook []Sheet

// PurchaseHeader is the purchase sheet header used by the shared fixtures.
func PurchaseHeader() []any {
	return []any{
		"purchase_date", "customer_guid", "vendor_name", "product_name",
		"purchase_location", "quantity", "purchase_price", "purchase_price_w_discount",
	}
}

// ThreeRowWorkbook is the reference three-purchase scenario: two vendorA sales
// of 10 and 20 at 08:00 and one vendorB sale of 30 at 14:00, no unit cost and
// no check-in sheet.
func ThreeRowWorkbook() Workbook {
	return Workbook{{
		Name: "Purchases",
		Rows: [][]any{
			PurchaseHeader(),
			{"2024-03-04 08:00:00", "c1", "vendorA", "Coffee", "Downtown", 1, 10, 10},
			{"2024-03-04 08:00:00", "c2", "vendorA", "Bagel", "Downtown", 2, 20, 20},
			{"2024-03-05 14:00:00", "c1", "vendorB", "Smoothie", "Uptown", 1, 30, 30},
		},
	}}
}

// WithSheet returns a copy of w with another sheet appended.
func (w Workbook) WithSheet(name string, rows ...[]any) Workbook {
	out := append(Workbook{}, w...)
	return append(out, Sheet{Name: name, Rows: rows})
}

// WorkbookBytes renders w as an xlsx payload.
func WorkbookBytes(t *testing.T, w Workbook) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range w {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", sheet.Name))
		} else {
			_, err := f.NewSheet(sheet.Name)
			require.NoError(t, err)
		}
		for r, row := range sheet.Rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(sheet.Name, cell, &row))
		}
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

// WriteWorkbook writes w under t.TempDir() and returns the file path.
func WriteWorkbook(t *testing.T, w Workbook) string {
	t.Helper()
	return WriteWorkbookTo(t, filepath.Join(t.TempDir(), "retail_data.xlsx"), w)
}

// WriteWorkbookTo writes w at path, creating parent directories.
func WriteWorkbookTo(t *testing.T, path string, w Workbook) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, WorkbookBytes(t, w), 0644))
	return path
}
