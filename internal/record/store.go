// Package record holds the crawl's persisted state: a nested map of
// collection, item and page to the minimized record captured for that page.
package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/JakeFAU/loc-crawler/internal/crawler"
	"github.com/JakeFAU/loc-crawler/internal/metrics"
)

type items map[string]map[int]crawler.PageRecord

// Store is the in-memory record document. Every key is separator-stripped
// and a non-empty record, once stored, is never replaced. Store is safe for
// concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string]items
}

// Stats summarizes a Store.
type Stats struct {
	Collections int
	Items       int
	Pages       int
	Empty       int
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: map[string]items{}}
}

// EnsureCollection creates the collection entry if it is missing.
func (s *Store) EnsureCollection(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureCollection(crawler.StripID(collection))
}

func (s *Store) ensureCollection(collection string) items {
	c, ok := s.data[collection]
	if !ok {
		c = items{}
		s.data[collection] = c
	}
	return c
}

// EnsureItem creates the item entry (and its collection) if missing.
func (s *Store) EnsureItem(collection, item string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureItem(crawler.StripID(collection), crawler.StripID(item))
}

func (s *Store) ensureItem(collection, item string) map[int]crawler.PageRecord {
	c := s.ensureCollection(collection)
	pages, ok := c[item]
	if !ok {
		pages = map[int]crawler.PageRecord{}
		c[item] = pages
	}
	return pages
}

// HasPage reports whether a non-empty record exists for the page.
func (s *Store) HasPage(collection, item string, page int) bool {
	rec, ok := s.Page(collection, item, page)
	return ok && !rec.IsEmpty()
}

// Page returns the stored record for the page, if any.
func (s *Store) Page(collection, item string, page int) (crawler.PageRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[crawler.StripID(collection)][crawler.StripID(item)][page]
	return rec, ok
}

// Put stores rec unless a non-empty record already occupies the page. It
// reports whether rec was written.
func (s *Store) Put(collection, item string, page int, rec crawler.PageRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pages := s.ensureItem(crawler.StripID(collection), crawler.StripID(item))
	if existing, ok := pages[page]; ok && !existing.IsEmpty() {
		return false
	}
	pages[page] = rec
	return true
}

// Collections returns the collection keys in sorted order.
func (s *Store) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.data))
}

// Items returns the item keys of a collection in sorted order.
func (s *Store) Items(collection string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.data[crawler.StripID(collection)]))
}

// Pages returns the stored page numbers of an item in ascending order.
func (s *Store) Pages(collection, item string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.data[crawler.StripID(collection)][crawler.StripID(item)]))
}

// Stats counts the entries in the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st Stats
	st.Collections = len(s.data)
	for _, c := range s.data {
		st.Items += len(c)
		for _, pages := range c {
			st.Pages += len(pages)
			for _, rec := range pages {
				if rec.IsEmpty() {
					st.Empty++
				}
			}
		}
	}
	return st
}

// Encode serializes the store. Map keys are emitted in sorted order, so equal
// stores encode to equal bytes.
func (s *Store) Encode() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := json.Marshal(s.data)
	if err != nil {
		return nil, fmt.Errorf("encode record store: %w", err)
	}
	return data, nil
}

// Decode parses a record document. Keys are stripped as they are read; when
// two spellings collapse onto one key the first non-empty record per page,
// in sorted key order, is kept.
func Decode(data []byte) (*Store, error) {
	var raw map[string]map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode record store: %w", err)
	}
	s := New()
	for _, collection := range slices.Sorted(maps.Keys(raw)) {
		c := s.ensureCollection(crawler.StripID(collection))
		for _, item := range slices.Sorted(maps.Keys(raw[collection])) {
			key := crawler.StripID(item)
			pages, ok := c[key]
			if !ok {
				pages = map[int]crawler.PageRecord{}
				c[key] = pages
			}
			for _, pageKey := range slices.Sorted(maps.Keys(raw[collection][item])) {
				body := raw[collection][item][pageKey]
				page, err := strconv.Atoi(pageKey)
				if err != nil {
					return nil, fmt.Errorf("decode record store: %s/%s: page key %q: %w", collection, item, pageKey, err)
				}
				rec, err := decodeRecord(body)
				if err != nil {
					return nil, fmt.Errorf("decode record store: %s/%s/%d: %w", collection, item, page, err)
				}
				if existing, ok := pages[page]; ok && !existing.IsEmpty() {
					continue
				}
				pages[page] = rec
			}
		}
	}
	return s, nil
}

// Load reads the store from backend. A backend with no document yields an
// empty store.
func Load(ctx context.Context, backend crawler.RecordBackend) (*Store, error) {
	data, err := backend.Load(ctx)
	if errors.Is(err, crawler.ErrRecordNotFound) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load record store from %s: %w", backend.URI(), err)
	}
	return Decode(data)
}

// Save writes the whole store through backend and returns the encoded size.
func (s *Store) Save(ctx context.Context, backend crawler.RecordBackend) (int, error) {
	data, err := s.Encode()
	if err != nil {
		return 0, err
	}
	err = backend.Save(ctx, data)
	metrics.ObserveRecordSave(err, len(data))
	if err != nil {
		return 0, fmt.Errorf("save record store to %s: %w", backend.URI(), err)
	}
	return len(data), nil
}
