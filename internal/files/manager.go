package files

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Manager moves export directories aside and back.
type Manager struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a new file manager instance
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger.With(slog.String("component", "files")), now: time.Now}
}

// Backup moves dir to a timestamped sibling and returns its path. It returns
// "" when dir does not exist.
func (m *Manager) Backup(dir string) (string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("stat %s: %w", dir, err)
	}

	target := BackupName(dir, m.now())
	for n := 1; pathExists(target); n++ {
		target = BackupName(dir, m.now()) + "_" + strconv.Itoa(n)
	}

	if err := m.MoveDir(dir, target); err != nil {
		return "", fmt.Errorf("back up %s: %w", dir, err)
	}
	m.logger.Info("export directory backed up",
		slog.String("dir", dir),
		slog.String("backup", target))
	return target, nil
}

// Restore replaces dir with backup wholesale.
func (m *Manager) Restore(backup, dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove %s: %w", dir, err)
	}
	if err := m.MoveDir(backup, dir); err != nil {
		return fmt.Errorf("restore %s: %w", backup, err)
	}
	m.logger.Warn("export directory restored from backup",
		slog.String("dir", dir),
		slog.String("backup", backup))
	return nil
}

// PruneBackups deletes all but the newest keep backups of dir and returns the
// removed paths.
func (m *Manager) PruneBackups(dir string, keep int) ([]string, error) {
	if keep < 0 {
		keep = 0
	}
	backups, err := FindBackups(dir)
	if err != nil {
		return nil, err
	}
	if len(backups) <= keep {
		return nil, nil
	}

	var removed []string
	for _, b := range backups[:len(backups)-keep] {
		if err := os.RemoveAll(b.Path); err != nil {
			return removed, fmt.Errorf("remove backup %s: %w", b.Path, err)
		}
		m.logger.Info("old backup removed", slog.String("backup", b.Path))
		removed = append(removed, b.Path)
	}
	return removed, nil
}

// MoveDir renames src to dst, falling back to copy and delete across
// filesystems.
func (m *Manager) MoveDir(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	m.logger.Debug("rename failed, copying", slog.String("src", src), slog.String("dst", dst))
	if err := copyTree(src, dst); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file content: %w", err)
	}
	return dstFile.Sync()
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
