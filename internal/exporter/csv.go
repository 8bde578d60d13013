package exporter

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter writes CSV files into a single output directory.
type CSVWriter struct {
	dir string
	bom bool
}

// NewCSVWriter creates a writer rooted at dir. With bom set every file starts
// with a UTF-8 byte order mark so Excel detects the encoding.
func NewCSVWriter(dir string, bom bool) *CSVWriter {
	return &CSVWriter{dir: dir, bom: bom}
}

// Path returns where name is written.
func (w *CSVWriter) Path(name string) string {
	return filepath.Join(w.dir, filepath.Base(name))
}

// StreamWriter writes one record at a time so a table is never buffered as
// strings.
type StreamWriter struct {
	file   *os.File
	writer *csv.Writer
	rows   int
}

// CreateStreamWriter creates name and writes its header row.
func (w *CSVWriter) CreateStreamWriter(name string, headers []string) (*StreamWriter, error) {
	fullPath := w.Path(name)

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	if w.bom {
		if _, err := file.Write(utf8BOM); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(file)
	if len(headers) > 0 {
		if err := writer.Write(headers); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write headers: %w", err)
		}
	}

	return &StreamWriter{file: file, writer: writer}, nil
}

// WriteRecord writes a single record to the stream
func (s *StreamWriter) WriteRecord(record []string) error {
	if err := s.writer.Write(record); err != nil {
		return err
	}
	s.rows++
	return nil
}

// Rows is the number of records written so far, header excluded.
func (s *StreamWriter) Rows() int { return s.rows }

// Close flushes and closes the stream writer
func (s *StreamWriter) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
