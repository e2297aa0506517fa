package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/loc-crawler/internal/config"
	"github.com/JakeFAU/loc-crawler/internal/hash/sha256"
	"github.com/JakeFAU/loc-crawler/internal/record"
	"github.com/JakeFAU/loc-crawler/internal/storage/local"
)

func itemPage(current, total int, date string) string {
	return fmt.Sprintf(`{
  "item": {"date": %q, "access_restricted": false},
  "pagination": {"current": %d, "total": %d},
  "page": [
    {"url": "https://tile.loc.gov/%d-small.jpg", "mimetype": "image/jpeg", "width": 100, "height": 100},
    {"url": "https://tile.loc.gov/%d-large.jpg", "mimetype": "image/jpeg", "width": 2000, "height": 1500}
  ],
  "cite_this": {"apa": "Catalog entry."}
}`, date, current, total, current, current)
}

// catalog serves a collection with two items, the first spanning two pages,
// and a second collection whose listing spans two pages.
func catalog(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("fo") != "json" {
			http.Error(w, "json only", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		base := "http://" + r.Host + "/"
		switch {
		case r.URL.Path == "/collections/cats/":
			fmt.Fprintf(w, `{"content": {"set": {"items": [{"link": "%sitem/a/"}, {"link": "/item/b/"}]}}, "next": null}`, base)
		case r.URL.Path == "/collections/dogs/" && r.URL.Query().Get("sp") == "2":
			fmt.Fprint(w, `{"content": {"set": {"items": [{"link": "/item/d2/"}]}}, "next": null}`)
		case r.URL.Path == "/collections/dogs/":
			fmt.Fprintf(w, `{"content": {"set": {"items": [{"link": "/item/d1/"}]}}, "next": {"url": "%scollections/dogs/?sp=2"}}`, base)
		case r.URL.Path == "/item/a" && r.URL.Query().Get("sp") == "2":
			fmt.Fprint(w, itemPage(2, 2, "June 1950"))
		case r.URL.Path == "/item/a":
			fmt.Fprint(w, itemPage(1, 2, "1950"))
		case r.URL.Path == "/item/b":
			fmt.Fprint(w, itemPage(1, 1, "c1901."))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testConfig(baseURL, recordPath string) config.Config {
	return config.Config{
		Crawler: config.CrawlerConfig{
			BaseURL:     baseURL + "/",
			Collections: []string{"collections/cats/"},
			UserAgent:   "loc-crawler-test",
			Concurrency: 2,
			MimeType:    "image/jpeg",
		},
		HTTP: config.HTTPConfig{TimeoutSeconds: 5},
		Record: config.RecordConfig{
			Backend: config.BackendLocal,
			Path:    recordPath,
		},
	}
}

func TestRunCrawlEndToEnd(t *testing.T) {
	srv, hits := catalog(t)
	path := filepath.Join(t.TempDir(), "images.json")
	cfg := testConfig(srv.URL, path)
	require.NoError(t, cfg.Validate())

	summary, err := runCrawl(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.PagesCaptured)
	assert.Equal(t, int32(4), hits.Load())

	backend, err := local.New(local.Config{Path: path})
	require.NoError(t, err)
	store, err := record.Load(context.Background(), backend)
	require.NoError(t, err)
	rec, ok := store.Page("collections/cats", "item/a", 2)
	require.True(t, ok)
	assert.Equal(t, "1950-06-01", rec.Date.String())
	assert.Equal(t, "https://tile.loc.gov/2-large.jpg", rec.Image.URL)

	first, err := os.ReadFile(path)
	require.NoError(t, err)

	again, err := runCrawl(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, again.ItemsSkipped)
	assert.Equal(t, int32(5), hits.Load(), "the re-run only lists the collection")
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestManifestCommand(t *testing.T) {
	srv, _ := catalog(t)
	recordPath := filepath.Join(t.TempDir(), "images.json")
	_, err := runCrawl(context.Background(), testConfig(srv.URL, recordPath), zap.NewNop())
	require.NoError(t, err)

	cfgPath := writeYAML(t, fmt.Sprintf("record:\n  backend: local\n  path: %q\n", recordPath))
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", cfgPath, "manifest"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, record.ManifestHeader, rows[0])
	assert.Equal(t, []string{
		"collections/cats", "item/a", "1", sha256.ImageKey("item/a", 1),
		"https://tile.loc.gov/1-large.jpg", "image/jpeg",
	}, rows[1])

	outPath := filepath.Join(t.TempDir(), "manifest.csv")
	cmd = newRootCmd()
	cmd.SetArgs([]string{"--config", cfgPath, "manifest", "-o", outPath})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, out.String(), string(data))
}

func TestCrawlCommandRequiresCollections(t *testing.T) {
	cfgPath := writeYAML(t, fmt.Sprintf("record:\n  path: %q\n", filepath.Join(t.TempDir(), "images.json")))
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "crawl"})
	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no collections"))
}

func TestOpenBackendRejectsUnknownKind(t *testing.T) {
	_, closeFn, err := openBackend(context.Background(), config.RecordConfig{Backend: "ftp"}, zap.NewNop())
	require.Error(t, err)
	closeFn()

	b, closeFn, err := openBackend(context.Background(), config.RecordConfig{Backend: config.BackendMemory, Path: "x"}, zap.NewNop())
	require.NoError(t, err)
	defer closeFn()
	assert.Equal(t, "memory://x", b.URI())
}

func TestPagesCommand(t *testing.T) {
	srv, _ := catalog(t)
	cfgPath := writeYAML(t, fmt.Sprintf("crawler:\n  base_url: %q\nhttp:\n  rate_per_second: 0\n", srv.URL+"/"))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", cfgPath, "pages", "collections/dogs/", "collections/cats/"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, "collections/dogs/\ncollections/dogs/?sp=2\ncollections/cats/\n", out.String())

	cmd = newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "pages"})
	require.Error(t, cmd.ExecuteContext(context.Background()))
}
