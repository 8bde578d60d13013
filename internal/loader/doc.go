// Package loader reads the purchase and check-in workbook from a local file
// or a remote share link and caches the parsed tables.
//
// Local sources are fingerprinted by absolute path, modification time and
// size; remote sources by URL and expire after the configured TTL. Cached
// datasets are shared between callers and must be treated as read-only.
package loader
