package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://www.loc.gov/", cfg.Crawler.BaseURL)
	assert.Equal(t, "image/jpeg", cfg.Crawler.MimeType)
	assert.Equal(t, 4, cfg.Crawler.Concurrency)
	assert.Equal(t, 100, cfg.Crawler.CheckpointEvery)
	assert.Empty(t, cfg.Crawler.Collections)
	assert.Equal(t, 2, cfg.HTTP.MaxRetries)
	assert.Equal(t, 15*time.Second, cfg.HTTP.Cooldown())
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout())
	assert.Equal(t, BackendLocal, cfg.Record.Backend)
	assert.Equal(t, "images.json", cfg.Record.Path)
	assert.Empty(t, cfg.API.ListenAddr)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
crawler:
  collections:
    - free-to-use/cats
    - /free-to-use/dogs/
  contact: archivist@example.org
  concurrency: 2
  mimetype: image/gif
  checkpoint_every: 0
  item_prefix: resource/
http:
  timeout_seconds: 45
  max_retries: 5
  cooldown_seconds: 3
  rate_per_second: 0.5
  burst: 2
  default_params:
    at: item,resources
  default_headers:
    Accept-Language: en
record:
  backend: s3
  s3:
    endpoint: http://localhost:9000
    bucket: crawl
pubsub:
  project_id: proj
  topic_name: crawl-done
api:
  listen_addr: ":9090"
logging:
  development: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"free-to-use/cats", "/free-to-use/dogs/"}, cfg.Crawler.Collections)
	assert.Equal(t, "loc-crawler/0.1 (archivist@example.org)", cfg.Crawler.EffectiveUserAgent())
	assert.Equal(t, 0, cfg.Crawler.CheckpointEvery)
	assert.Equal(t, "resource/", cfg.Crawler.ItemPrefix)
	assert.Equal(t, 45*time.Second, cfg.HTTP.Timeout())
	assert.Equal(t, 3*time.Second, cfg.HTTP.Cooldown())
	assert.InDelta(t, 0.5, cfg.HTTP.RatePerSecond, 1e-9)
	assert.Equal(t, "item,resources", cfg.HTTP.Params().Get("at"))
	assert.Equal(t, "en", cfg.HTTP.Headers().Get("Accept-Language"))
	assert.Equal(t, BackendS3, cfg.Record.Backend)
	assert.Equal(t, "crawl", cfg.Record.S3.Bucket)
	assert.Equal(t, "us-east-1", cfg.Record.S3.Region)
	assert.Equal(t, "crawl-done", cfg.PubSub.TopicName)
	assert.Equal(t, ":9090", cfg.API.ListenAddr)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("CRAWLER_HTTP_MAX_RETRIES", "7")
	t.Setenv("CRAWLER_RECORD_PATH", "/tmp/records.json")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.HTTP.MaxRetries)
	assert.Equal(t, "/tmp/records.json", cfg.Record.Path)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")

	_, err = Load(writeConfig(t, "record:\n  backend: ftp\n"))
	require.ErrorContains(t, err, "record.backend")
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Crawler: CrawlerConfig{BaseURL: "https://www.loc.gov/", Concurrency: 1},
			HTTP:    HTTPConfig{TimeoutSeconds: 10},
			Record:  RecordConfig{Backend: BackendLocal, Path: "images.json"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative base url", func(c *Config) { c.Crawler.BaseURL = "loc.gov/" }, "crawler.base_url"},
		{"base url without slash", func(c *Config) { c.Crawler.BaseURL = "https://www.loc.gov/api" }, "end with /"},
		{"concurrency", func(c *Config) { c.Crawler.Concurrency = 0 }, "crawler.concurrency"},
		{"checkpoint", func(c *Config) { c.Crawler.CheckpointEvery = -1 }, "crawler.checkpoint_every"},
		{"blank collection", func(c *Config) { c.Crawler.Collections = []string{"a", "//"} }, "crawler.collections[1]"},
		{"timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"retries", func(c *Config) { c.HTTP.MaxRetries = -1 }, "http.max_retries"},
		{"cooldown", func(c *Config) { c.HTTP.CooldownSeconds = -1 }, "http.cooldown_seconds"},
		{"rate", func(c *Config) { c.HTTP.RatePerSecond = -1 }, "http.rate_per_second"},
		{"local path", func(c *Config) { c.Record.Path = "" }, "record.path"},
		{"gcs bucket", func(c *Config) { c.Record.Backend = BackendGCS }, "record.gcs_bucket"},
		{"s3 bucket", func(c *Config) { c.Record.Backend = BackendS3 }, "record.s3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
