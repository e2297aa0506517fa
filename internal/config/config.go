// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/loc-crawler/internal/crawler"
)

// Record backend kinds.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendGCS    = "gcs"
	BackendS3     = "s3"
)

// Config captures every knob of a crawl run.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Record  RecordConfig  `mapstructure:"record"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	API     APIConfig     `mapstructure:"api"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlerConfig governs what is crawled and how wide.
type CrawlerConfig struct {
	BaseURL         string   `mapstructure:"base_url"`
	Collections     []string `mapstructure:"collections"`
	UserAgent       string   `mapstructure:"user_agent"`
	Contact         string   `mapstructure:"contact"`
	Concurrency     int      `mapstructure:"concurrency"`
	MimeType        string   `mapstructure:"mimetype"`
	CheckpointEvery int      `mapstructure:"checkpoint_every"`
	ItemPrefix      string   `mapstructure:"item_prefix"`
}

// HTTPConfig configures the upstream client. Viper lowercases map keys, so
// default_params and default_headers keys arrive in lower case.
type HTTPConfig struct {
	TimeoutSeconds  int               `mapstructure:"timeout_seconds"`
	MaxRetries      int               `mapstructure:"max_retries"`
	CooldownSeconds int               `mapstructure:"cooldown_seconds"`
	RatePerSecond   float64           `mapstructure:"rate_per_second"`
	Burst           int               `mapstructure:"burst"`
	MaxBodyBytes    int               `mapstructure:"max_body_bytes"`
	DefaultParams   map[string]string `mapstructure:"default_params"`
	DefaultHeaders  map[string]string `mapstructure:"default_headers"`
}

// RecordConfig selects where the record document lives.
type RecordConfig struct {
	Backend   string   `mapstructure:"backend"`
	Path      string   `mapstructure:"path"`
	GCSBucket string   `mapstructure:"gcs_bucket"`
	Object    string   `mapstructure:"object"`
	S3        S3Config `mapstructure:"s3"`
}

// S3Config addresses an S3-compatible object store.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
}

// PubSubConfig holds the completion notice destination. An empty topic
// disables publishing to Pub/Sub.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// APIConfig controls the optional ops listener.
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from the optional file at path, CRAWLER_* environment
// variables and defaults, then validates it.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.base_url", "https://www.loc.gov/")
	v.SetDefault("crawler.collections", []string{})
	v.SetDefault("crawler.user_agent", "loc-crawler/0.1")
	v.SetDefault("crawler.contact", "")
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.mimetype", crawler.DefaultMimeType)
	v.SetDefault("crawler.checkpoint_every", 100)
	v.SetDefault("crawler.item_prefix", "")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.cooldown_seconds", 15)
	v.SetDefault("http.rate_per_second", 1.0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("http.max_body_bytes", 32<<20)
	v.SetDefault("record.backend", BackendLocal)
	v.SetDefault("record.path", "images.json")
	v.SetDefault("record.object", "images.json")
	v.SetDefault("record.s3.region", "us-east-1")
	v.SetDefault("api.listen_addr", "")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Crawler.BaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("crawler.base_url must be an absolute URL, got %q", c.Crawler.BaseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		return errors.New("crawler.base_url must end with /")
	}
	if c.Crawler.Concurrency <= 0 {
		return errors.New("crawler.concurrency must be > 0")
	}
	if c.Crawler.CheckpointEvery < 0 {
		return errors.New("crawler.checkpoint_every must be >= 0")
	}
	for i, col := range c.Crawler.Collections {
		if crawler.StripID(col) == "" {
			return fmt.Errorf("crawler.collections[%d] is empty", i)
		}
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return errors.New("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return errors.New("http.max_retries must be >= 0")
	}
	if c.HTTP.CooldownSeconds < 0 {
		return errors.New("http.cooldown_seconds must be >= 0")
	}
	if c.HTTP.RatePerSecond < 0 {
		return errors.New("http.rate_per_second must be >= 0")
	}
	return c.Record.validate()
}

func (r RecordConfig) validate() error {
	switch r.Backend {
	case BackendLocal:
		if r.Path == "" {
			return errors.New("record.path is required for the local backend")
		}
	case BackendMemory:
	case BackendGCS:
		if r.GCSBucket == "" {
			return errors.New("record.gcs_bucket is required for the gcs backend")
		}
	case BackendS3:
		if r.S3.Endpoint == "" || r.S3.Bucket == "" {
			return errors.New("record.s3.endpoint and record.s3.bucket are required for the s3 backend")
		}
	default:
		return fmt.Errorf("record.backend %q is not one of local, memory, gcs, s3", r.Backend)
	}
	return nil
}

// Timeout is the per-request upstream timeout.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Cooldown is the wait between retries of a transient failure.
func (c HTTPConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// Params returns DefaultParams as url.Values.
func (c HTTPConfig) Params() url.Values {
	out := url.Values{}
	for k, v := range c.DefaultParams {
		out.Set(k, v)
	}
	return out
}

// Headers returns DefaultHeaders as an http.Header.
func (c HTTPConfig) Headers() http.Header {
	out := http.Header{}
	for k, v := range c.DefaultHeaders {
		out.Set(k, v)
	}
	return out
}

// EffectiveUserAgent appends the contact, when set, the way polite API
// clients identify themselves.
func (c CrawlerConfig) EffectiveUserAgent() string {
	if c.Contact == "" {
		return c.UserAgent
	}
	return fmt.Sprintf("%s (%s)", c.UserAgent, c.Contact)
}
