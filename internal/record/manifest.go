package record

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/JakeFAU/loc-crawler/internal/hash/sha256"
)

// ManifestHeader names the columns WriteManifest emits.
var ManifestHeader = []string{"collection", "item", "page", "image_key", "url", "mimetype"}

// WriteManifest writes one CSV row per captured page, in key order, giving
// the image downloader each page's image URL and the key it caches the file
// under. Empty records are left out. It returns the number of rows written.
func (s *Store) WriteManifest(w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(ManifestHeader); err != nil {
		return 0, fmt.Errorf("write manifest header: %w", err)
	}
	rows := 0
	for _, collection := range s.Collections() {
		for _, item := range s.Items(collection) {
			for _, page := range s.Pages(collection, item) {
				rec, ok := s.Page(collection, item, page)
				if !ok || rec.Image.URL == "" {
					continue
				}
				row := []string{
					collection,
					item,
					strconv.Itoa(page),
					sha256.ImageKey(item, page),
					rec.Image.URL,
					rec.Image.MimeType,
				}
				if err := cw.Write(row); err != nil {
					return rows, fmt.Errorf("write manifest row: %w", err)
				}
				rows++
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, fmt.Errorf("flush manifest: %w", err)
	}
	return rows, nil
}
