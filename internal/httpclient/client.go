// Package httpclient issues catalog API requests with a bounded retry budget
// for throttling responses.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/JakeFAU/loc-crawler/internal/crawler"
	"github.com/JakeFAU/loc-crawler/internal/metrics"
)

// Default retry policy: two retries, fifteen seconds apart.
const (
	DefaultRetries  = 2
	DefaultCooldown = 15 * time.Second
)

// Config holds the client's fixed request settings.
type Config struct {
	BaseURL        string
	UserAgent      string
	DefaultParams  url.Values
	DefaultHeaders http.Header
	Retries        int
	Cooldown       time.Duration
}

// Response is a successful (2xx) reply.
type Response struct {
	crawler.FetchResponse
	Attempts int
}

// RequestOptions overrides the retry policy for one call.
type RequestOptions struct {
	Retries  int
	Cooldown time.Duration
}

// RequestOption mutates RequestOptions.
type RequestOption func(*RequestOptions)

// WithRetries sets the number of retries after the first attempt.
func WithRetries(n int) RequestOption {
	return func(o *RequestOptions) {
		o.Retries = max(n, 0)
	}
}

// WithCooldown sets the fixed wait between attempts.
func WithCooldown(d time.Duration) RequestOption {
	return func(o *RequestOptions) {
		o.Cooldown = max(d, 0)
	}
}

// Client resolves relative paths against the base URL and retries 429/503
// responses after a fixed cooldown. It is safe for concurrent use.
type Client struct {
	cfg     Config
	base    *url.URL
	fetcher crawler.Fetcher
	limiter crawler.Limiter
	logger  *zap.Logger
}

// New validates cfg and builds a Client. limiter may be nil.
func New(cfg Config, fetcher crawler.Fetcher, limiter crawler.Limiter, logger *zap.Logger) (*Client, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Cooldown < 0 {
		return nil, fmt.Errorf("cooldown must be >= 0, got %s", cfg.Cooldown)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		base:    base,
		fetcher: fetcher,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// BaseURL returns the configured base URL as given.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// Request performs a GET for rel. Query parameters merge with increasing
// precedence: defaults, the query already on rel, then params. Headers merge
// defaults under the caller's. Non-2xx responses become
// *crawler.RequestFailure; 429 and 503 are retried while budget remains.
func (c *Client) Request(
	ctx context.Context,
	rel string,
	params url.Values,
	headers http.Header,
	opts ...RequestOption,
) (Response, error) {
	return c.do(ctx, rel, params, nil, headers, opts)
}

// RequestJSON is Request with fo=json forced over every other source.
func (c *Client) RequestJSON(
	ctx context.Context,
	rel string,
	params url.Values,
	headers http.Header,
	opts ...RequestOption,
) (Response, error) {
	return c.do(ctx, rel, params, url.Values{"fo": {"json"}}, headers, opts)
}

func (c *Client) do(
	ctx context.Context,
	rel string,
	params url.Values,
	forced url.Values,
	headers http.Header,
	opts []RequestOption,
) (Response, error) {
	target, err := c.resolve(rel, params, forced)
	if err != nil {
		return Response{}, err
	}
	reqHeaders := c.mergeHeaders(headers)

	options := RequestOptions{Retries: c.cfg.Retries, Cooldown: c.cfg.Cooldown}
	for _, opt := range opts {
		opt(&options)
	}

	attempts := 0
	operation := func() (Response, error) {
		attempts++
		return c.attempt(ctx, target, reqHeaders, attempts)
	}
	notify := func(err error, wait time.Duration) {
		metrics.ObserveRetry(target)
		c.logger.Warn("transient upstream failure, retrying",
			zap.String("url", target),
			zap.Int("attempt", attempts),
			zap.Duration("cooldown", wait),
			zap.Error(err),
		)
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(options.Cooldown), uint64(options.Retries)),
		ctx,
	)

	resp, err := backoff.RetryNotifyWithData(operation, policy, notify)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return Response{}, fmt.Errorf("request %s: %w", target, ctxErr)
		}
		return Response{}, err
	}
	resp.Attempts = attempts
	c.logger.Debug("requested url", zap.String("url", resp.URL), zap.Int("attempts", attempts))
	return resp, nil
}

// attempt runs a single request. Retryable failures are returned as-is;
// everything else is wrapped with backoff.Permanent.
func (c *Client) attempt(ctx context.Context, target string, headers http.Header, n int) (Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, target); err != nil {
			return Response{}, backoff.Permanent(err)
		}
	}
	start := time.Now()
	fetched, err := c.fetcher.Fetch(ctx, crawler.FetchRequest{URL: target, Headers: headers})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, backoff.Permanent(ctxErr)
		}
		metrics.ObserveUpstream(target, 0, time.Since(start))
		failure := &crawler.RequestFailure{URL: target, Err: err}
		if isTimeout(err) {
			return Response{}, failure
		}
		return Response{}, backoff.Permanent(failure)
	}
	metrics.ObserveUpstream(target, fetched.StatusCode, time.Since(start))

	if fetched.StatusCode >= 200 && fetched.StatusCode < 300 {
		return Response{FetchResponse: fetched, Attempts: n}, nil
	}
	failure := &crawler.RequestFailure{Status: fetched.StatusCode, URL: target}
	if failure.Transient() {
		return Response{}, failure
	}
	return Response{}, backoff.Permanent(failure)
}

func (c *Client) resolve(rel string, params url.Values, forced url.Values) (string, error) {
	ref, err := url.Parse(rel)
	if err != nil {
		return "", fmt.Errorf("parse relative url %q: %w", rel, err)
	}
	u := c.base.ResolveReference(ref)
	if u.User != nil || !strings.EqualFold(u.Scheme, c.base.Scheme) || !strings.EqualFold(u.Host, c.base.Host) {
		return "", fmt.Errorf("%w: %q resolves to %s://%s", crawler.ErrForeignOrigin, rel, u.Scheme, u.Host)
	}

	query := url.Values{}
	for _, layer := range []url.Values{c.cfg.DefaultParams, ref.Query(), params, forced} {
		for key, values := range layer {
			query[key] = append([]string(nil), values...)
		}
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func (c *Client) mergeHeaders(headers http.Header) http.Header {
	merged := http.Header{}
	if c.cfg.UserAgent != "" {
		merged.Set("User-Agent", c.cfg.UserAgent)
	}
	for _, layer := range []http.Header{c.cfg.DefaultHeaders, headers} {
		for key, values := range layer {
			merged[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
		}
	}
	return merged
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
