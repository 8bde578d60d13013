package loader

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"retailcli/internal/dataprocessing"
	"retailcli/internal/errors"
)

// Options configures a Loader.
type Options struct {
	DataDir      string
	PrimaryFile  string
	FallbackFile string
	FetchTimeout time.Duration
	// CacheTTL bounds how long a dataset stays cached. Zero disables caching.
	CacheTTL     time.Duration
	CacheEntries int
	HTTPClient   *http.Client
	// OnCacheLookup, when set, is told whether each lookup hit.
	OnCacheLookup func(ctx context.Context, hit bool)
}

// Dataset is one loaded workbook.
type Dataset struct {
	Purchases     *dataprocessing.Table
	Checkins      *dataprocessing.Table
	PurchaseSheet string
	CheckinSheet  string
	Degraded      bool
	Source        string
	Fingerprint   Fingerprint
	LoadedAt      time.Time
}

// Loader resolves a Source, reads the workbook and caches the result.
type Loader struct {
	opts    Options
	fetcher *Fetcher
	cache   *Cache
	logger  *slog.Logger
}

// NewLoader creates a loader, filling in default file names and timeouts.
func NewLoader(logger *slog.Logger, opts Options) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PrimaryFile == "" {
		opts.PrimaryFile = DefaultPrimaryFile
	}
	if opts.FallbackFile == "" {
		opts.FallbackFile = DefaultFallbackFile
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 60 * time.Second
	}
	if opts.CacheEntries <= 0 {
		opts.CacheEntries = 4
	}
	if opts.CacheTTL <= 0 {
		opts.CacheEntries = 0
	}

	return &Loader{
		opts:    opts,
		fetcher: NewFetcher(opts.HTTPClient, opts.FetchTimeout, logger),
		cache:   NewCache(opts.CacheEntries),
		logger:  logger.With(slog.String("component", "loader")),
	}
}

// Fetcher exposes the HTTP fetcher for connection checks.
func (l *Loader) Fetcher() *Fetcher { return l.fetcher }

// Cache exposes the dataset cache.
func (l *Loader) Cache() *Cache { return l.cache }

// Load returns the dataset for src, from cache when its fingerprint is fresh.
func (l *Loader) Load(ctx context.Context, src Source) (*Dataset, error) {
	if src.IsRemote() {
		return l.loadRemote(ctx, src)
	}
	return l.loadLocal(ctx, src)
}

// Invalidate drops the cached dataset for src. Local sources drop every
// version of the file, since the fingerprint includes the modification time.
func (l *Loader) Invalidate(src Source) int {
	if src.IsRemote() {
		key := URLFingerprint(src.URL)
		return l.cache.InvalidateWhere(func(k Fingerprint) bool { return k == key })
	}

	var prefixes []string
	for _, p := range l.candidates(src) {
		if abs, err := filepath.Abs(p); err == nil {
			prefixes = append(prefixes, "file:"+abs+"|")
		}
	}
	return l.cache.InvalidateWhere(func(k Fingerprint) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(string(k), p) {
				return true
			}
		}
		return false
	})
}

func (l *Loader) loadRemote(ctx context.Context, src Source) (*Dataset, error) {
	key := URLFingerprint(src.URL)
	if ds, ok := l.lookup(ctx, key); ok {
		l.logger.DebugContext(ctx, "dataset cache hit", slog.String("source", src.String()))
		return ds, nil
	}

	data, err := l.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	return l.build(ctx, key, src.String(), data)
}

func (l *Loader) loadLocal(ctx context.Context, src Source) (*Dataset, error) {
	path, err := l.resolve(src)
	if err != nil {
		return nil, err
	}

	key, _, err := FileFingerprint(path)
	if err != nil {
		return nil, errors.NewSourceUnavailableError(path, err)
	}
	if ds, ok := l.lookup(ctx, key); ok {
		l.logger.DebugContext(ctx, "dataset cache hit", slog.String("source", path))
		return ds, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewSourceUnavailableError(path, err)
	}
	return l.build(ctx, key, path, data)
}

func (l *Loader) lookup(ctx context.Context, key Fingerprint) (*Dataset, bool) {
	ds, ok := l.cache.Get(key)
	if l.opts.OnCacheLookup != nil {
		l.opts.OnCacheLookup(ctx, ok)
	}
	return ds, ok
}

func (l *Loader) build(ctx context.Context, key Fingerprint, desc string, data []byte) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wb, err := ReadWorkbook(data)
	if err != nil {
		if app, ok := err.(*errors.AppError); ok {
			app.WithContext("source", desc)
		}
		return nil, err
	}

	ds := &Dataset{
		Purchases:     wb.Purchases,
		Checkins:      wb.Checkins,
		PurchaseSheet: wb.PurchaseSheet,
		CheckinSheet:  wb.CheckinSheet,
		Degraded:      wb.Degraded,
		Source:        desc,
		Fingerprint:   key,
		LoadedAt:      time.Now(),
	}
	l.cache.Set(key, ds, l.opts.CacheTTL)

	level := slog.LevelInfo
	if ds.Degraded {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, "workbook loaded",
		slog.String("source", desc),
		slog.String("purchase_sheet", ds.PurchaseSheet),
		slog.String("checkin_sheet", ds.CheckinSheet),
		slog.Int("purchases", ds.Purchases.Len()),
		slog.Int("checkins", ds.Checkins.Len()),
		slog.Bool("degraded", ds.Degraded))
	return ds, nil
}

// resolve picks the local file: an explicit path, else the primary then the
// fallback name inside the data directory.
func (l *Loader) resolve(src Source) (string, error) {
	candidates := l.candidates(src)
	for _, p := range candidates {
		info, err := os.Stat(p)
		if err == nil && !info.IsDir() {
			return p, nil
		}
		if err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return "", errors.NewSourceUnavailableError(p, err)
		}
	}
	return "", errors.NewSourceUnavailableError(strings.Join(candidates, ", "),
		fmt.Errorf("no workbook found"))
}

func (l *Loader) candidates(src Source) []string {
	if src.Path != "" {
		return []string{src.Path}
	}
	return []string{
		filepath.Join(l.opts.DataDir, l.opts.PrimaryFile),
		filepath.Join(l.opts.DataDir, l.opts.FallbackFile),
	}
}
