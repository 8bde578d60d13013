package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// BackupTimeLayout is the timestamp suffix of a backup directory name.
const BackupTimeLayout = "20060102_150405"

const backupInfix = "_backup_"

// FileInfo represents information about a discovered file
type FileInfo struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	IsDir   bool      `json:"is_dir"`
}

// BackupName returns the backup directory path for dir taken at t.
func BackupName(dir string, t time.Time) string {
	return filepath.Clean(dir) + backupInfix + t.Format(BackupTimeLayout)
}

// backupTime parses the timestamp out of a backup name for base.
func backupTime(base, name string) (time.Time, bool) {
	stamp, ok := strings.CutPrefix(name, base+backupInfix)
	if !ok {
		return time.Time{}, false
	}
	// A same-second collision adds "_N" after the timestamp.
	if len(stamp) > len(BackupTimeLayout) {
		stamp = stamp[:len(BackupTimeLayout)]
	}
	t, err := time.ParseInLocation(BackupTimeLayout, stamp, time.Local)
	return t, err == nil
}

// FindBackups lists the backup directories of dir, oldest first.
func FindBackups(dir string) ([]FileInfo, error) {
	dir = filepath.Clean(dir)
	parent, base := filepath.Dir(dir), filepath.Base(dir)

	entries, err := os.ReadDir(parent)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", parent, err)
	}

	type backup struct {
		info  FileInfo
		taken time.Time
	}
	var found []backup
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		taken, ok := backupTime(base, entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, backup{
			info: FileInfo{
				Path:    filepath.Join(parent, entry.Name()),
				Name:    entry.Name(),
				ModTime: info.ModTime(),
				IsDir:   true,
			},
			taken: taken,
		})
	}

	sort.SliceStable(found, func(i, j int) bool {
		if !found[i].taken.Equal(found[j].taken) {
			return found[i].taken.Before(found[j].taken)
		}
		return found[i].info.Name < found[j].info.Name
	})

	out := make([]FileInfo, len(found))
	for i, b := range found {
		out[i] = b.info
	}
	return out, nil
}

// FindWorkbooks finds the Excel and CSV files in dir, newest first.
func FindWorkbooks(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".xlsx", ".xlsm", ".csv":
		default:
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Path:    filepath.Join(dir, entry.Name()),
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

// MissingFiles returns the names from required that are not regular files in dir.
func MissingFiles(dir string, required ...string) []string {
	var missing []string
	for _, name := range required {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || info.IsDir() {
			missing = append(missing, name)
		}
	}
	return missing
}
