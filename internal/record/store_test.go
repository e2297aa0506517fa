package record

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/loc-crawler/internal/crawler"
	"github.com/JakeFAU/loc-crawler/internal/storage/memory"
)

func sample(url string) crawler.PageRecord {
	w, h := 1024, 768
	return crawler.PageRecord{
		Date:      civil.Date{Year: 1950, Month: time.March, Day: 1},
		DateRaw:   "March 1950",
		Image:     crawler.Variant{URL: url, MimeType: "image/jpeg", Width: &w, Height: &h},
		Citations: map[string]string{"apa": "x"},
	}
}

func TestPutNeverOverwritesNonEmpty(t *testing.T) {
	t.Parallel()

	s := New()
	assert.True(t, s.Put("free-to-use/cats/", "/item/a/", 1, crawler.PageRecord{}))
	assert.False(t, s.HasPage("free-to-use/cats", "item/a", 1), "empty records do not count")

	assert.True(t, s.Put("free-to-use/cats", "item/a", 1, sample("first")))
	assert.False(t, s.Put("free-to-use/cats", "item/a/", 1, sample("second")))

	rec, ok := s.Page("/free-to-use/cats/", "item/a", 1)
	require.True(t, ok)
	assert.Equal(t, "first", rec.Image.URL)
	assert.True(t, s.HasPage("free-to-use/cats", "/item/a", 1))
}

func TestKeysAreStripped(t *testing.T) {
	t.Parallel()

	s := New()
	s.EnsureCollection("/free-to-use/dogs/")
	s.EnsureItem("free-to-use/dogs", "/item/b/")
	s.Put("free-to-use/dogs/", "item/b", 2, sample("u"))
	s.Put("free-to-use/dogs/", "item/b", 1, sample("v"))

	assert.Equal(t, []string{"free-to-use/dogs"}, s.Collections())
	assert.Equal(t, []string{"item/b"}, s.Items("free-to-use/dogs"))
	assert.Equal(t, []int{1, 2}, s.Pages("free-to-use/dogs", "item/b"))
	assert.Equal(t, Stats{Collections: 1, Items: 1, Pages: 2}, s.Stats())
}

func TestEncodeDecodeRoundTripIsByteStable(t *testing.T) {
	t.Parallel()

	s := New()
	s.EnsureCollection("empty/collection")
	s.Put("c", "item/a", 10, sample("ten"))
	s.Put("c", "item/a", 2, sample("two"))
	s.Put("c", "item/b", 1, crawler.PageRecord{})

	first, err := s.Encode()
	require.NoError(t, err)

	decoded, err := Decode(first)
	require.NoError(t, err)
	second, err := decoded.Encode()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	rec, ok := decoded.Page("c", "item/a", 2)
	require.True(t, ok)
	assert.Equal(t, sample("two"), rec)
	assert.Equal(t, Stats{Collections: 2, Items: 2, Pages: 3, Empty: 1}, decoded.Stats())
}

func TestDecodeMergesUnstrippedKeys(t *testing.T) {
	t.Parallel()

	doc := `{
	  "cats/": {
	    "/item/a/": {"1": {}, "2": {"date": "1950-01-01", "date_raw": "1950", "image": {"url": "late"}, "access_restricted": false}},
	    "item/a":   {"1": {"date": "1951-01-01", "date_raw": "1951", "image": {"url": "one"}, "access_restricted": false},
	                 "2": {"date": "1952-01-01", "date_raw": "1952", "image": {"url": "two"}, "access_restricted": false}}
	  }
	}`
	s, err := Decode([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, []string{"cats"}, s.Collections())
	assert.Equal(t, []string{"item/a"}, s.Items("cats"))

	// "/item/a/" sorts first: its empty page 1 is filled from "item/a",
	// while its non-empty page 2 wins.
	one, _ := s.Page("cats", "item/a", 1)
	two, _ := s.Page("cats", "item/a", 2)
	assert.Equal(t, "one", one.Image.URL)
	assert.Equal(t, "late", two.Image.URL)
}

func TestDecodeAcceptsEarlierFieldNames(t *testing.T) {
	t.Parallel()

	doc := `{"free-to-use/cats/": {"item/x": {"3": {
	  "date": "1923-04-01 00:00:00",
	  "date_raw": 1923,
	  "jpeg": {"url": "https://tile.loc.gov/x.jpg", "mimetype": "image/jpeg", "size": 12},
	  "cite_this": {"mla": "Cat."},
	  "access_restricted": false
	}}}}`
	s, err := Decode([]byte(doc))
	require.NoError(t, err)

	rec, ok := s.Page("free-to-use/cats", "item/x", 3)
	require.True(t, ok)
	assert.Equal(t, civil.Date{Year: 1923, Month: time.April, Day: 1}, rec.Date)
	assert.Equal(t, "1923", rec.DateRaw)
	assert.Equal(t, "https://tile.loc.gov/x.jpg", rec.Image.URL)
	require.NotNil(t, rec.Image.Size)
	assert.Equal(t, int64(12), *rec.Image.Size)
	assert.Equal(t, map[string]string{"mla": "Cat."}, rec.Citations)
}

func TestDecodeRejectsCorruptDocuments(t *testing.T) {
	t.Parallel()

	for _, doc := range []string{
		`[]`,
		`{"c": {"i": {"one": {}}}}`,
		`{"c": {"i": {"1": {"date": "not a date"}}}}`,
		`{"c": {"i": {"1": []}}}`,
	} {
		_, err := Decode([]byte(doc))
		assert.Error(t, err, doc)
	}

	s, err := Decode([]byte(`{"c": null, "d": {"i": null}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, s.Collections())
}

func TestLoadAndSave(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := memory.New("records.json")

	s, err := Load(ctx, backend)
	require.NoError(t, err)
	assert.Empty(t, s.Collections())

	s.Put("cats", "item/a", 1, sample("a"))
	size, err := s.Save(ctx, backend)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.Saves())
	data, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, data, size)

	reloaded, err := Load(ctx, backend)
	require.NoError(t, err)
	assert.True(t, reloaded.HasPage("cats", "item/a", 1))

	backend.FailSaves(errors.New("quota exceeded"))
	_, err = reloaded.Save(ctx, backend)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory://records.json")
}

func TestLoadPropagatesCorruption(t *testing.T) {
	t.Parallel()

	_, err := Load(context.Background(), memory.NewWithData("bad.json", []byte(`{"c": 1}`)))
	require.Error(t, err)
}

func TestConcurrentPuts(t *testing.T) {
	t.Parallel()

	s := New()
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Put("c", "item/shared", i%4+1, sample("x"))
			_ = s.HasPage("c", "item/shared", 1)
			_, _ = s.Encode()
		}()
	}
	wg.Wait()
	assert.Equal(t, []int{1, 2, 3, 4}, s.Pages("c", "item/shared"))
}
