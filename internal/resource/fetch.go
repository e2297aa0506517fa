package resource

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/loc-crawler/internal/httpclient"
)

// JSONClient is the subset of *httpclient.Client the fetcher needs.
type JSONClient interface {
	RequestJSON(
		ctx context.Context,
		rel string,
		params url.Values,
		headers http.Header,
		opts ...httpclient.RequestOption,
	) (httpclient.Response, error)
}

// Fetcher loads item pages through the catalog client.
type Fetcher struct {
	client JSONClient
	prefix string
	logger *zap.Logger
}

// FetcherOption customizes a Fetcher.
type FetcherOption func(*Fetcher)

// WithPrefix requests items under prefix (e.g. "resource/") instead of at
// their bare id path.
func WithPrefix(prefix string) FetcherOption {
	return func(f *Fetcher) {
		f.prefix = prefix
	}
}

// NewFetcher builds a Fetcher.
func NewFetcher(client JSONClient, logger *zap.Logger, opts ...FetcherOption) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{client: client, logger: logger}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch requests page of item id and parses it. A page below 1 omits the sp
// parameter so the catalog returns its default first page.
func (f *Fetcher) Fetch(ctx context.Context, id string, page int) (*Resource, error) {
	var params url.Values
	if page > 0 {
		params = url.Values{"sp": {strconv.Itoa(page)}}
	}
	resp, err := f.client.RequestJSON(ctx, f.prefix+id, params, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch resource %q page %d: %w", id, page, err)
	}
	return Parse(resp.Body, id, WithLogger(f.logger.With(zap.String("item", id))))
}
