package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"retailcli/internal/errors"
)

// Workbook extensions the loader can read.
var workbookExtensions = map[string]bool{".xlsx": true, ".xlsm": true, ".csv": true}

// Preflight checks local inputs and outputs before a refresh starts, so a
// bad path fails fast with a readable message instead of midway through.
type Preflight struct {
	logger *slog.Logger
}

// NewPreflight creates a checker.
func NewPreflight(logger *slog.Logger) *Preflight {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preflight{logger: logger.With(slog.String("component", "preflight"))}
}

// ValidateWorkbook checks that path is a readable workbook file.
func (p *Preflight) ValidateWorkbook(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return errors.NewSourceUnavailableError(path, err)
	}
	if err != nil {
		return errors.NewSourceUnavailableError(path, fmt.Errorf("stat: %w", err))
	}
	if info.IsDir() {
		return errors.NewAppValidationError(fmt.Sprintf("%s is a directory, not a workbook", path))
	}

	base := filepath.Base(path)
	if strings.HasPrefix(base, "~$") {
		return errors.NewAppValidationError(fmt.Sprintf("%s is an office lock file", base))
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !workbookExtensions[ext] {
		return errors.NewAppValidationError(fmt.Sprintf("%s: unsupported extension %q", base, ext)).
			WithContext("path", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.NewSourceUnavailableError(path, err)
	}
	f.Close()

	p.logger.Debug("workbook validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateOutputDirectory checks that dir can be written. The directory
// itself need not exist yet; its nearest existing ancestor is tested instead,
// so the check leaves nothing behind.
func (p *Preflight) ValidateOutputDirectory(dir string) error {
	existing := dir
	for {
		info, err := os.Stat(existing)
		if err == nil {
			if !info.IsDir() {
				return errors.NewStorageError(fmt.Sprintf("%s is not a directory", existing), nil).
					WithContext("output_dir", dir)
			}
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return errors.NewStorageError("no existing ancestor for "+dir, err)
		}
		existing = parent
	}

	f, err := os.CreateTemp(existing, ".write_test_*")
	if err != nil {
		return errors.NewStorageError(fmt.Sprintf("%s is not writable", existing), err).
			WithContext("output_dir", dir)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	p.logger.Debug("output directory validated",
		slog.String("output_dir", dir),
		slog.String("tested", existing))
	return nil
}

// CountCSV counts the CSV files in dir.
func (p *Preflight) CountCSV(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	n := 0
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && !info.IsDir() {
			n++
		}
	}
	return n, nil
}
