package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths holds the resolved directories the tools read and write.
type Paths struct {
	BaseDir   string
	DataDir   string
	ExportDir string
	LogsDir   string
}

// ResolvePaths makes the configured directories absolute. Relative entries
// are taken from the working directory, where the workbook and export folder
// usually sit side by side.
func ResolvePaths(cfg *Config) (*Paths, error) {
	base, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return ResolvePathsFrom(base, cfg), nil
}

// ResolvePathsFrom is ResolvePaths against an explicit base directory.
func ResolvePathsFrom(base string, cfg *Config) *Paths {
	abs := func(p string) string {
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(base, p)
	}
	return &Paths{
		BaseDir:   base,
		DataDir:   abs(cfg.Source.DataDir),
		ExportDir: abs(cfg.Export.OutputDir),
		LogsDir:   abs(filepath.Dir(cfg.Logging.FilePath)),
	}
}

// EnsureDirectories creates the data directory. The export directory is
// created by the exporter, after any backup has been taken.
func (p *Paths) EnsureDirectories() error {
	if err := os.MkdirAll(p.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", p.DataDir, err)
	}
	return nil
}

// LogAttrs describes the resolved paths for startup logging.
func (p *Paths) LogAttrs() []any {
	return []any{
		slog.String("base_dir", p.BaseDir),
		slog.String("data_dir", p.DataDir),
		slog.String("export_dir", p.ExportDir),
		slog.String("logs_dir", p.LogsDir),
	}
}
