package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"retailcli/internal/dataprocessing"
	"retailcli/internal/errors"
)

// MetadataFile is the name of the export manifest.
const MetadataFile = "metadata.json"

// DateRange is the span of purchase timestamps in an export.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Metadata describes one export directory.
type Metadata struct {
	ExportID        string          `json:"export_id"`
	ExportTimestamp string          `json:"export_timestamp"`
	Source          string          `json:"source,omitempty"`
	PurchasesCount  int             `json:"purchases_count"`
	CheckinsCount   int             `json:"checkins_count"`
	DateRange       *DateRange      `json:"date_range,omitempty"`
	TotalSales      decimal.Decimal `json:"total_sales"`
	FilesExported   []string        `json:"files_exported"`
}

// writeConcurrency bounds how many CSV files are written at once.
const writeConcurrency = 4

// Exporter writes a pipeline result as flat CSV files plus metadata.json.
type Exporter struct {
	bom    bool
	logger *slog.Logger
	now    func() time.Time
}

// NewExporter creates an exporter. bom prefixes every CSV with a UTF-8 BOM.
func NewExporter(logger *slog.Logger, bom bool) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		bom:    bom,
		logger: logger.With(slog.String("component", "exporter")),
		now:    time.Now,
	}
}

// Export writes result into dir. Check-ins are written only when non-empty.
// Any write failure is a STORAGE error; files already written are left in
// place for the caller to discard.
func (e *Exporter) Export(ctx context.Context, dir string, result *dataprocessing.Result, source string) (*Metadata, error) {
	writer := NewCSVWriter(dir, e.bom)

	candidates := []*dataprocessing.Table{result.Purchases}
	if !result.Checkins.IsEmpty() {
		candidates = append(candidates, result.Checkins)
	}
	candidates = append(candidates, result.Summaries.Tables()...)
	candidates = append(candidates, result.VendorPerformance, result.CustomerPerformance)

	// A table without columns was skipped upstream for lack of its source
	// column and is not written.
	var tables []*dataprocessing.Table
	for _, t := range candidates {
		if t != nil && len(t.Columns()) > 0 {
			tables = append(tables, t)
		}
	}

	meta := &Metadata{
		ExportID:        uuid.NewString(),
		ExportTimestamp: e.now().Format(time.RFC3339),
		Source:          source,
		PurchasesCount:  result.Purchases.Len(),
		CheckinsCount:   result.Checkins.Len(),
		TotalSales:      totalSales(result),
		FilesExported:   []string{},
	}
	if first, last, ok := dataprocessing.DateRange(result.Purchases, result.Bindings); ok {
		meta.DateRange = &DateRange{Start: first.Format(time.RFC3339), End: last.Format(time.RFC3339)}
	}

	if err := e.writeTables(ctx, writer, dir, tables, result); err != nil {
		return nil, err
	}
	for _, t := range tables {
		meta.FilesExported = append(meta.FilesExported, t.Name+".csv")
	}

	if err := WriteMetadata(dir, meta); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "export complete",
		slog.String("dir", dir),
		slog.String("export_id", meta.ExportID),
		slog.Int("files", len(meta.FilesExported)),
		slog.Int("purchases", meta.PurchasesCount),
		slog.Int("checkins", meta.CheckinsCount))
	return meta, nil
}

// writeTables writes every table concurrently, at most writeConcurrency at a
// time. The first failure cancels the rest. Workbook columns of the enriched
// purchases and check-ins are written as read.
func (e *Exporter) writeTables(ctx context.Context, writer *CSVWriter, dir string, tables []*dataprocessing.Table, result *dataprocessing.Result) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(writeConcurrency)
	for _, t := range tables {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var isSource func(string) bool
			if t == result.Purchases || t == result.Checkins {
				isSource = result.IsSourceColumn
			}
			name := t.Name + ".csv"
			if err := e.writeTable(writer, name, t, isSource); err != nil {
				return errors.NewStorageError(fmt.Sprintf("write %s", name), err).
					WithContext("dir", dir)
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *Exporter) writeTable(w *CSVWriter, name string, t *dataprocessing.Table, isSource func(string) bool) error {
	columns := t.Columns()
	stream, err := w.CreateStreamWriter(name, columns)
	if err != nil {
		return err
	}
	for i := 0; i < t.Len(); i++ {
		if err := stream.WriteRecord(formatRecord(t, columns, i, isSource)); err != nil {
			stream.Close()
			return err
		}
	}
	if err := stream.Close(); err != nil {
		return err
	}

	e.logger.Debug("table written",
		slog.String("file", name),
		slog.Int("rows", stream.Rows()))
	return nil
}

// WriteMetadata writes meta as indented JSON into dir.
func WriteMetadata(dir string, meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.NewStorageError("encode metadata", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetadataFile), data, 0644); err != nil {
		return errors.NewStorageError("write metadata", err).WithContext("dir", dir)
	}
	return nil
}

// ReadMetadata loads dir's metadata.json.
func ReadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, errors.NewStorageError("read metadata", err).WithContext("dir", dir)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.NewStorageError("decode metadata", err).WithContext("dir", dir)
	}
	return &meta, nil
}

func totalSales(result *dataprocessing.Result) decimal.Decimal {
	total := decimal.Zero
	col, ok := result.Bindings.Column(dataprocessing.FieldAdjustedPrice)
	if !ok {
		return total
	}
	for i := 0; i < result.Purchases.Len(); i++ {
		if f, ok := result.Purchases.Get(i, col).Float(); ok {
			total = total.Add(decimal.NewFromFloat(f))
		}
	}
	return total.Round(2)
}
