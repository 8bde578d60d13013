// Package operations runs a full export refresh as a sequence of steps.
//
// A Refresher moves the current export directory to a timestamped backup,
// runs load, preprocess, enrich, summarize and export, then checks that the
// required files exist. A failure at any point puts the backup back; success
// prunes older backups. Each run is tracked as a RunState whose Snapshot can
// be read while the run is in progress, and every step is wrapped in an
// OpenTelemetry span.
//
// Runs are serialized within one process. Nothing guards against two
// processes refreshing the same directory.
package operations
