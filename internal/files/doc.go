// Package files manages export directories on disk.
//
// Before a refresh the current export directory is moved to a sibling named
// <dir>_backup_YYYYMMDD_HHMMSS. A failed refresh restores that backup in
// place of the partial output; a successful one prunes older backups.
package files
