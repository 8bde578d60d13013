package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"retailcli/internal/dataprocessing"
	"retailcli/internal/errors"
)

// Workbook is the pair of raw tables read from one payload.
type Workbook struct {
	Purchases     *dataprocessing.Table
	Checkins      *dataprocessing.Table
	PurchaseSheet string
	CheckinSheet  string
	// Degraded is set when the payload was not a workbook and was read as a
	// single delimited sheet.
	Degraded bool
}

// ReadWorkbook parses an xlsx payload. The first sheet whose name contains
// "purchase" becomes purchases (else the first sheet); the first containing
// "checkin" becomes check-ins (else an empty table). A payload excelize cannot
// open is read as CSV purchases with empty check-ins; only if that fails too is
// a PARSING error returned.
func ReadWorkbook(data []byte) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		wb, csvErr := readDelimited(data)
		if csvErr != nil {
			return nil, errors.NewParsingError("payload is neither a workbook nor delimited text",
				fmt.Errorf("xlsx: %v; csv: %w", err, csvErr))
		}
		return wb, nil
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.NewParsingError("workbook has no sheets", nil)
	}
	purchaseSheet, checkinSheet := selectSheets(sheets)

	wb := &Workbook{PurchaseSheet: purchaseSheet, CheckinSheet: checkinSheet}
	if wb.Purchases, err = readSheet(f, purchaseSheet, "purchases"); err != nil {
		return nil, err
	}
	if checkinSheet == "" {
		wb.Checkins = dataprocessing.NewTable("checkins")
	} else if wb.Checkins, err = readSheet(f, checkinSheet, "checkins"); err != nil {
		return nil, err
	}
	return wb, nil
}

// selectSheets applies the sheet-name rules.
func selectSheets(sheets []string) (purchases, checkins string) {
	for _, name := range sheets {
		lower := strings.ToLower(name)
		if purchases == "" && strings.Contains(lower, "purchase") {
			purchases = name
		}
		if checkins == "" && strings.Contains(lower, "checkin") {
			checkins = name
		}
	}
	if purchases == "" {
		purchases = sheets[0]
	}
	if checkins == purchases {
		checkins = ""
	}
	return purchases, checkins
}

func readSheet(f *excelize.File, sheet, table string) (*dataprocessing.Table, error) {
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.NewParsingError(fmt.Sprintf("read sheet %q", sheet), err)
	}
	return tableFromRows(table, rows), nil
}

func readDelimited(data []byte) (*Workbook, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\ufeff"))))
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	if len(rows) == 0 || !looksLikeHeader(rows[0]) {
		return nil, fmt.Errorf("no header row")
	}

	return &Workbook{
		Purchases:     tableFromRows("purchases", rows),
		Checkins:      dataprocessing.NewTable("checkins"),
		PurchaseSheet: "csv",
		Degraded:      true,
	}, nil
}

// looksLikeHeader rejects binary junk that encoding/csv happily splits.
func looksLikeHeader(row []string) bool {
	for _, cell := range row {
		for _, r := range cell {
			if r == '\uFFFD' || (r < 0x20 && r != '\t') {
				return false
			}
		}
	}
	return strings.TrimSpace(strings.Join(row, "")) != ""
}

// tableFromRows builds a table from a header row and string cells. Empty
// cells are null. A column whose non-empty cells all parse as numbers becomes
// numeric; every other column stays text.
func tableFromRows(name string, rows [][]string) *dataprocessing.Table {
	if len(rows) == 0 {
		return dataprocessing.NewTable(name)
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = h
		if strings.TrimSpace(h) == "" {
			header[i] = "Unnamed: " + strconv.Itoa(i)
		}
	}

	body := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		body = append(body, row)
		for len(header) < len(row) {
			header = append(header, "Unnamed: "+strconv.Itoa(len(header)))
		}
	}

	numeric := make([]bool, len(header))
	for c := range header {
		numeric[c] = isNumericColumn(body, c)
	}

	t := dataprocessing.NewTable(name, header...)
	t.RenameColumns(func(s string) string { return s })
	for _, row := range body {
		cells := make([]dataprocessing.Value, len(header))
		for c := range header {
			if c >= len(row) || row[c] == "" {
				continue
			}
			if numeric[c] {
				f, _ := strconv.ParseFloat(strings.TrimSpace(row[c]), 64)
				cells[c] = dataprocessing.Number(f)
			} else {
				cells[c] = dataprocessing.String(row[c])
			}
		}
		_ = t.Append(cells...)
	}
	return t
}

func isNumericColumn(rows [][]string, c int) bool {
	seen := false
	for _, row := range rows {
		if c >= len(row) || row[c] == "" {
			continue
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(row[c]), 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
