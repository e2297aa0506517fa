// Package resource interprets the JSON document the catalog returns for one
// item page and derives the minimized record persisted for it.
package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/loc-crawler/internal/crawler"
)

// MaxPages bounds pagination values. Documents claiming more pages are
// rejected by Parse.
const MaxPages = 100_000

type document struct {
	AccessRestricted *bool                      `json:"access_restricted"`
	Item             map[string]json.RawMessage `json:"item"`
	Page             json.RawMessage            `json:"page"`
	Resources        json.RawMessage            `json:"resources"`
	Pagination       *pagination                `json:"pagination"`
	CiteThis         json.RawMessage            `json:"cite_this"`
}

type pagination struct {
	Current json.RawMessage `json:"current"`
	Total   json.RawMessage `json:"total"`
}

type resourceEntry struct {
	Files []json.RawMessage `json:"files"`
}

// Resource is a parsed item page. It is read-only after Parse.
type Resource struct {
	id     string
	doc    document
	logger *zap.Logger
}

// Option customizes Parse.
type Option func(*Resource)

// WithLogger attaches a logger for data-quality warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resource) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Parse decodes raw as an item document. It fails with
// crawler.ErrAccessRestricted when the document marks the item restricted.
func Parse(raw []byte, id string, opts ...Option) (*Resource, error) {
	r := &Resource{id: id, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	if err := json.Unmarshal(raw, &r.doc); err != nil {
		return nil, fmt.Errorf("decode resource %q: %w", id, err)
	}
	if r.AccessRestricted() {
		return nil, fmt.Errorf("resource %q: %w", id, crawler.ErrAccessRestricted)
	}
	if err := r.doc.Pagination.check(); err != nil {
		return nil, fmt.Errorf("resource %q: %w", id, err)
	}
	return r, nil
}

// ID returns the id the resource was requested with.
func (r *Resource) ID() string {
	return r.id
}

// CurrentPage returns pagination.current, defaulting to 1.
func (r *Resource) CurrentPage() int {
	if r.doc.Pagination == nil {
		return 1
	}
	if n, ok := lenientInt(r.doc.Pagination.Current); ok {
		return n
	}
	return 1
}

// TotalPages returns pagination.total, defaulting to 1.
func (r *Resource) TotalPages() int {
	if r.doc.Pagination == nil {
		return 1
	}
	if n, ok := lenientInt(r.doc.Pagination.Total); ok {
		return n
	}
	return 1
}

// OtherPages lists 1..TotalPages() in ascending order without CurrentPage().
func (r *Resource) OtherPages() []int {
	current, total := r.CurrentPage(), r.TotalPages()
	pages := make([]int, 0, min(max(total-1, 0), MaxPages))
	for p := 1; p <= total; p++ {
		if p != current {
			pages = append(pages, p)
		}
	}
	return pages
}

// AccessRestricted reports item.access_restricted, falling back to the
// top-level flag.
func (r *Resource) AccessRestricted() bool {
	if raw, ok := r.doc.Item["access_restricted"]; ok {
		var restricted bool
		if err := json.Unmarshal(raw, &restricted); err == nil && restricted {
			return true
		}
	}
	return r.doc.AccessRestricted != nil && *r.doc.AccessRestricted
}

func (r *Resource) hasAccessFlag() bool {
	if raw, ok := r.doc.Item["access_restricted"]; ok && !isNull(raw) {
		return true
	}
	return r.doc.AccessRestricted != nil
}

// HasImage reports whether item.online_format lists "image". The field may be
// a string or a list of strings.
func (r *Resource) HasImage() (bool, error) {
	raw, ok := r.doc.Item["online_format"]
	if !ok || isNull(raw) {
		return false, crawler.MissingField("item.online_format")
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single == "image", nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return false, fmt.Errorf("item.online_format: %w", err)
	}
	for _, f := range many {
		if f == "image" {
			return true, nil
		}
	}
	return false, nil
}

// ImageVariants returns the page list when it is non-empty, otherwise every
// file flattened out of resources[].files[][]. Entries that are not variant
// objects are dropped.
func (r *Resource) ImageVariants() []crawler.Variant {
	if variants := r.decodeVariants(r.pageEntries()); len(variants) > 0 {
		return variants
	}
	files, err := r.resourceFiles()
	if err != nil {
		r.logger.Warn("could not assemble file list", zap.String("id", r.id), zap.Error(err))
		return []crawler.Variant{}
	}
	variants := r.decodeVariants(files)
	if len(variants) == 0 {
		r.logger.Warn("no image variants", zap.String("id", r.id))
	}
	return variants
}

func (r *Resource) pageEntries() []json.RawMessage {
	if isNull(r.doc.Page) {
		return nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(r.doc.Page, &entries); err != nil {
		r.logger.Debug("page field is not a list", zap.String("id", r.id), zap.Error(err))
		return nil
	}
	return entries
}

func (r *Resource) resourceFiles() ([]json.RawMessage, error) {
	if isNull(r.doc.Resources) {
		return nil, nil
	}
	var resources []resourceEntry
	if err := json.Unmarshal(r.doc.Resources, &resources); err != nil {
		return nil, fmt.Errorf("resources: %w", err)
	}
	var files []json.RawMessage
	for i, res := range resources {
		for j, group := range res.Files {
			var list []json.RawMessage
			if err := json.Unmarshal(group, &list); err != nil {
				return nil, fmt.Errorf("resources[%d].files[%d]: %w", i, j, err)
			}
			files = append(files, list...)
		}
	}
	return files, nil
}

func (r *Resource) decodeVariants(entries []json.RawMessage) []crawler.Variant {
	variants := make([]crawler.Variant, 0, len(entries))
	for i, entry := range entries {
		if len(bytes.TrimSpace(entry)) == 0 || bytes.TrimSpace(entry)[0] != '{' {
			continue
		}
		var v crawler.Variant
		if err := json.Unmarshal(entry, &v); err != nil {
			r.logger.Debug("skipping malformed variant", zap.String("id", r.id), zap.Int("index", i), zap.Error(err))
			continue
		}
		variants = append(variants, v)
	}
	return variants
}

// RawDate returns item.date. Non-string values are rendered as their JSON
// text, so a numeric 1950 becomes "1950".
func (r *Resource) RawDate() (string, error) {
	raw, ok := r.doc.Item["date"]
	if !ok || isNull(raw) {
		return "", crawler.MissingField("item.date")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	return string(bytes.TrimSpace(raw)), nil
}

// Citations returns the cite_this mapping of style name to citation text.
func (r *Resource) Citations() (map[string]string, error) {
	if isNull(r.doc.CiteThis) {
		return nil, crawler.MissingField("cite_this")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(r.doc.CiteThis, &fields); err != nil {
		return nil, fmt.Errorf("cite_this: %w", err)
	}
	citations := make(map[string]string, len(fields))
	for style, value := range fields {
		var text string
		if err := json.Unmarshal(value, &text); err != nil {
			text = string(bytes.TrimSpace(value))
		}
		citations[style] = text
	}
	return citations, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// check rejects page numbers outside 0..MaxPages. Values that are not
// numbers fall back to the accessor defaults instead.
func (p *pagination) check() error {
	if p == nil {
		return nil
	}
	for _, field := range []struct {
		name string
		raw  json.RawMessage
	}{{"pagination.current", p.Current}, {"pagination.total", p.Total}} {
		n, ok := lenientNumber(field.raw)
		if ok && (n < 0 || n > MaxPages) {
			return fmt.Errorf("%w: %s is %v, want 0..%d", crawler.ErrInvalidPagination, field.name, n, MaxPages)
		}
	}
	return nil
}

func lenientNumber(raw json.RawMessage) (float64, bool) {
	if isNull(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return float64(n), true
		}
	}
	return 0, false
}

func lenientInt(raw json.RawMessage) (int, bool) {
	f, ok := lenientNumber(raw)
	if !ok || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
