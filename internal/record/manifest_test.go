package record

import (
	"bytes"
	"encoding/csv"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/loc-crawler/internal/crawler"
	"github.com/JakeFAU/loc-crawler/internal/hash/sha256"
)

func TestWriteManifest(t *testing.T) {
	t.Parallel()

	s := New()
	s.Put("cats", "item/b", 2, sample("https://tile.loc.gov/b2.jpg"))
	s.Put("cats", "item/a", 1, sample("https://tile.loc.gov/a1.jpg"))
	s.Put("cats", "item/a", 3, crawler.PageRecord{})
	s.EnsureCollection("dogs")

	var buf bytes.Buffer
	n, err := s.WriteManifest(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ManifestHeader, rows[0])
	assert.Equal(t, []string{
		"cats", "item/a", "1", sha256.ImageKey("item/a", 1), "https://tile.loc.gov/a1.jpg", "image/jpeg",
	}, rows[1])
	assert.Equal(t, "item/b", rows[2][1])
	assert.Equal(t, "2", rows[2][2])
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed pipe") }

func TestWriteManifestReportsWriterErrors(t *testing.T) {
	t.Parallel()

	s := New()
	s.Put("cats", "item/a", 1, sample("u"))
	_, err := s.WriteManifest(failingWriter{})
	require.ErrorContains(t, err, "closed pipe")
}
