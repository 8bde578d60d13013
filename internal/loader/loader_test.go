package loader

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailcli/internal/errors"
	"retailcli/internal/shared/testutil"
)

func newTestLoader(t *testing.T, opts Options) (*Loader, *testutil.BufferedSlogHandler) {
	t.Helper()
	logger, logs := testutil.NewTestLogger(t)
	return NewLoader(logger, opts), logs
}

func TestLoader_LocalPrimaryThenFallback(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteWorkbookTo(t, filepath.Join(dir, DefaultFallbackFile), testutil.ThreeRowWorkbook())

	l, logs := newTestLoader(t, Options{DataDir: dir})
	ds, err := l.Load(context.Background(), Source{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultFallbackFile), ds.Source)
	assert.Equal(t, 3, ds.Purchases.Len())
	testutil.AssertLogContains(t, logs, slog.LevelInfo, "workbook loaded")

	primary := testutil.Workbook{{
		Name: "Purchases",
		Rows: [][]any{testutil.PurchaseHeader(), {"2024-03-04 08:00:00", "c1", "v", "p", "l", 1, 5, 5}},
	}}
	testutil.WriteWorkbookTo(t, filepath.Join(dir, DefaultPrimaryFile), primary)

	ds, err = l.Load(context.Background(), Source{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultPrimaryFile), ds.Source)
	assert.Equal(t, 1, ds.Purchases.Len())
}

func TestLoader_MissingFileIsSourceUnavailable(t *testing.T) {
	tests := []struct {
		name string
		src  Source
	}{
		{"no default files", Source{}},
		{"explicit path", Source{Path: filepath.Join(t.TempDir(), "nope.xlsx")}},
	}

	l, _ := newTestLoader(t, Options{DataDir: t.TempDir()})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Load(context.Background(), tt.src)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeSourceUnavailable))
		})
	}
}

func TestLoader_LocalCacheFollowsFingerprint(t *testing.T) {
	path := testutil.WriteWorkbook(t, testutil.ThreeRowWorkbook())

	var hits, misses int
	l, _ := newTestLoader(t, Options{
		CacheTTL: time.Hour,
		OnCacheLookup: func(_ context.Context, hit bool) {
			if hit {
				hits++
			} else {
				misses++
			}
		},
	})
	ctx := context.Background()

	first, err := l.Load(ctx, Source{Path: path})
	require.NoError(t, err)
	second, err := l.Load(ctx, Source{Path: path})
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)

	// Rewriting the file changes its fingerprint.
	edited := testutil.ThreeRowWorkbook()
	edited[0].Rows = edited[0].Rows[:2]
	testutil.WriteWorkbookTo(t, path, edited)
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	third, err := l.Load(ctx, Source{Path: path})
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 1, third.Purchases.Len())
	assert.NotEqual(t, first.Fingerprint, third.Fingerprint)
}

func TestLoader_InvalidateDropsLocalEntries(t *testing.T) {
	path := testutil.WriteWorkbook(t, testutil.ThreeRowWorkbook())
	l, _ := newTestLoader(t, Options{CacheTTL: time.Hour})
	ctx := context.Background()

	first, err := l.Load(ctx, Source{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 1, l.Invalidate(Source{Path: path}))

	second, err := l.Load(ctx, Source{Path: path})
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestLoader_NoCacheWithoutTTL(t *testing.T) {
	path := testutil.WriteWorkbook(t, testutil.ThreeRowWorkbook())
	l, _ := newTestLoader(t, Options{})

	first, err := l.Load(context.Background(), Source{Path: path})
	require.NoError(t, err)
	second, err := l.Load(context.Background(), Source{Path: path})
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 0, l.Cache().Stats().Entries)
}

func TestLoader_Remote(t *testing.T) {
	payload := testutil.WorkbookBytes(t, testutil.ThreeRowWorkbook())
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		switch r.URL.Path {
		case "/ok.xlsx":
			assert.Equal(t, "1", r.URL.Query().Get("download"))
			w.Write(payload)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l, _ := newTestLoader(t, Options{CacheTTL: time.Hour})
	ctx := context.Background()

	ds, err := l.Load(ctx, Source{URL: srv.URL + "/ok.xlsx?e=token"})
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Purchases.Len())
	assert.Equal(t, srv.URL+"/ok.xlsx", ds.Source, "query string is redacted")

	_, err = l.Load(ctx, Source{URL: srv.URL + "/ok.xlsx?e=token"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, requests.Load(), "second load is served from cache")

	_, err = l.Load(ctx, Source{URL: srv.URL + "/missing.xlsx"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeSourceUnavailable))
}

func TestLoader_RemoteEntryExpires(t *testing.T) {
	payload := testutil.WorkbookBytes(t, testutil.ThreeRowWorkbook())
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write(payload)
	}))
	defer srv.Close()

	l, _ := newTestLoader(t, Options{CacheTTL: time.Minute})
	now := time.Now()
	l.cache.now = func() time.Time { return now }

	_, err := l.Load(context.Background(), Source{URL: srv.URL})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = l.Load(context.Background(), Source{URL: srv.URL})
	require.NoError(t, err)
	assert.EqualValues(t, 2, requests.Load())
}

func TestLoader_RemoteCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	l, _ := newTestLoader(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Load(ctx, Source{URL: srv.URL})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeSourceUnavailable))
}

func TestFetcher_Check(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	}))
	defer srv.Close()

	f := NewFetcher(nil, time.Second, nil)

	res, err := f.Check(context.Background(), srv.URL+"/book.xlsx")
	require.NoError(t, err)
	assert.True(t, res.Reachable)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.ContentType, "spreadsheetml")

	res, err = f.Check(context.Background(), srv.URL+"/gone")
	require.NoError(t, err)
	assert.False(t, res.Reachable)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.NotEmpty(t, res.Error)

	_, err = f.Check(context.Background(), "://bad")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}

func TestFetcher_Fetch_SizeCap(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"under the cap", 15, false},
		{"exactly the cap", 16, false},
		{"over the cap", 17, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write(make([]byte, tt.size))
			}))
			defer srv.Close()

			f := NewFetcher(nil, time.Second, nil)
			f.maxBytes = 16

			body, err := f.Fetch(context.Background(), srv.URL+"/book.xlsx")
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Len(t, body, tt.size)
				return
			}
			require.Error(t, err)
			assert.Nil(t, body)
			assert.True(t, errors.IsType(err, errors.ErrTypeSourceUnavailable))
			assert.Contains(t, err.Error(), "too large")
		})
	}
}

func TestNormalizeShareURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://x.sharepoint.com/:x:/g/abc?e=Zx1", "https://x.sharepoint.com/:x:/g/abc?download=1&e=Zx1"},
		{"https://x.sharepoint.com/:x:/g/abc?e=Zx1&download=1", "https://x.sharepoint.com/:x:/g/abc?e=Zx1&download=1"},
		{"https://example.com/book.xlsx", "https://example.com/book.xlsx"},
		{"  https://example.com/book.xlsx?v=2 ", "https://example.com/book.xlsx?v=2"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeShareURL(tt.in))
		})
	}
}

func TestSource_StringRedactsQuery(t *testing.T) {
	assert.Equal(t, "https://example.com/book.xlsx", Source{URL: "https://example.com/book.xlsx?e=secret"}.String())
	assert.Equal(t, "/data/book.xlsx", Source{Path: "/data/book.xlsx"}.String())
	assert.Equal(t, "default local workbook", Source{}.String())
}

func TestCache_EvictsOldestAndCounts(t *testing.T) {
	c := NewCache(2)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("a", &Dataset{Source: "a"}, time.Hour)
	now = now.Add(time.Second)
	c.Set("b", &Dataset{Source: "b"}, time.Hour)
	now = now.Add(time.Second)
	c.Set("c", &Dataset{Source: "c"}, time.Hour)

	_, ok := c.Get("a")
	assert.False(t, ok)
	ds, ok := c.Get("c")
	require.True(t, ok)
	assert.Equal(t, "c", ds.Source)

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRatio, 1e-9)

	c.Invalidate("b")
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 0, c.Stats().Entries)
}
