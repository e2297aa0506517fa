// Package collection walks paginated collection listings and yields the item
// ids they contain.
package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/loc-crawler/internal/crawler"
	"github.com/JakeFAU/loc-crawler/internal/httpclient"
)

// Client is the subset of *httpclient.Client the walker needs.
type Client interface {
	RequestJSON(
		ctx context.Context,
		rel string,
		params url.Values,
		headers http.Header,
		opts ...httpclient.RequestOption,
	) (httpclient.Response, error)
	BaseURL() string
}

// Walker follows "next" cursors from a starting collection path.
type Walker struct {
	client Client
	logger *zap.Logger
}

// New builds a Walker.
func New(client Client, logger *zap.Logger) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{client: client, logger: logger}
}

type listing struct {
	Content struct {
		Set struct {
			Items []struct {
				Link string `json:"link"`
			} `json:"items"`
		} `json:"set"`
	} `json:"content"`
	Next json.RawMessage `json:"next"`
}

// Page is one decoded listing page.
type Page struct {
	Path    string
	ItemIDs []string
	// Next is the relative path of the following page, empty on the last one.
	Next string
}

// ItemIDs lazily yields item ids across every listing page reachable from
// startID. A page is fetched only when the previous one has been consumed.
// On failure the sequence yields ("", err) once and ends. Each call starts a
// fresh walk.
func (w *Walker) ItemIDs(ctx context.Context, startID string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		err := w.walk(ctx, startID, func(page Page) bool {
			for _, id := range page.ItemIDs {
				if !yield(id, nil) {
					return false
				}
			}
			return true
		})
		if err != nil {
			yield("", err)
		}
	}
}

// AllItemIDs collects every item id eagerly. On failure it returns the ids
// gathered before the failing page together with the error.
func (w *Walker) AllItemIDs(ctx context.Context, startID string) ([]string, error) {
	var ids []string
	for id, err := range w.ItemIDs(ctx, startID) {
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Pages returns the relative path of every listing page visited from startID,
// in order.
func (w *Walker) Pages(ctx context.Context, startID string) ([]string, error) {
	var paths []string
	err := w.walk(ctx, startID, func(page Page) bool {
		paths = append(paths, page.Path)
		return true
	})
	return paths, err
}

func (w *Walker) walk(ctx context.Context, startID string, visit func(Page) bool) error {
	seen := map[string]struct{}{}
	path := startID
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("walk collection %q: %w", startID, err)
		}
		if _, dup := seen[path]; dup {
			return fmt.Errorf("%w: cursor loop back to %q", crawler.ErrInvalidCursor, path)
		}
		seen[path] = struct{}{}

		page, err := w.fetchPage(ctx, path)
		if err != nil {
			if len(page.ItemIDs) > 0 {
				visit(page)
			}
			return err
		}
		w.logger.Debug("collection page",
			zap.String("collection", startID),
			zap.String("path", page.Path),
			zap.Int("items", len(page.ItemIDs)),
		)
		if !visit(page) || page.Next == "" {
			return nil
		}
		path = page.Next
	}
}

func (w *Walker) fetchPage(ctx context.Context, path string) (Page, error) {
	resp, err := w.client.RequestJSON(ctx, path, nil, nil)
	if err != nil {
		return Page{}, fmt.Errorf("fetch collection page %q: %w", path, err)
	}
	var doc listing
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return Page{}, fmt.Errorf("decode collection page %q: %w", path, err)
	}

	page := Page{Path: path, ItemIDs: make([]string, 0, len(doc.Content.Set.Items))}
	for i, item := range doc.Content.Set.Items {
		id, err := itemID(item.Link)
		if err != nil || id == "" {
			w.logger.Warn("skipping item without usable link",
				zap.String("path", path), zap.Int("index", i), zap.String("link", item.Link), zap.Error(err))
			continue
		}
		page.ItemIDs = append(page.ItemIDs, id)
	}

	// A bad cursor ends the walk, but the ids on this page are still usable.
	next, err := nextURL(doc.Next)
	if err != nil {
		return page, fmt.Errorf("collection page %q: %w", path, err)
	}
	if next != "" {
		page.Next, err = RelativeTo(w.client.BaseURL(), next)
		if err != nil {
			return page, fmt.Errorf("collection page %q: %w", path, err)
		}
	}
	return page, nil
}

// RelativeTo strips base from rawURL. rawURL must share base's scheme, host
// and path prefix, and the remainder must stay a path on that origin;
// anything else is rejected with crawler.ErrInvalidCursor.
func RelativeTo(base, rawURL string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: parse base url %q: %w", crawler.ErrInvalidCursor, base, err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: parse %q: %w", crawler.ErrInvalidCursor, rawURL, err)
	}
	if u.User != nil || !strings.EqualFold(u.Scheme, b.Scheme) || !strings.EqualFold(u.Host, b.Host) {
		return "", fmt.Errorf("%w: %q is not on the origin of %q", crawler.ErrInvalidCursor, rawURL, base)
	}
	basePath := b.EscapedPath()
	if !strings.HasSuffix(basePath, "/") {
		basePath += "/"
	}
	path := u.EscapedPath()
	if !strings.HasPrefix(path, basePath) {
		return "", fmt.Errorf("%w: %q does not start with %q", crawler.ErrInvalidCursor, rawURL, base)
	}
	rel := strings.TrimPrefix(path, basePath)
	if strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%w: %q leaves the base path", crawler.ErrInvalidCursor, rawURL)
	}
	if u.RawQuery != "" {
		rel += "?" + u.RawQuery
	}
	if rel == "" {
		return "", fmt.Errorf("%w: %q points at the base url", crawler.ErrInvalidCursor, rawURL)
	}
	ref, err := url.Parse(rel)
	if err != nil || ref.IsAbs() || ref.Host != "" {
		return "", fmt.Errorf("%w: %q is not a relative path", crawler.ErrInvalidCursor, rawURL)
	}
	return rel, nil
}

// nextURL accepts {"url": "..."} or a bare string; null or absent means the
// walk is over.
func nextURL(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var obj struct {
		URL *string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("%w: unsupported next value %s", crawler.ErrInvalidCursor, trimmed)
	}
	if obj.URL == nil {
		return "", nil
	}
	return *obj.URL, nil
}

func itemID(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse item link: %w", err)
	}
	return crawler.StripID(u.Path), nil
}
