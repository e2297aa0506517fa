package resource

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	"github.com/JakeFAU/loc-crawler/internal/crawler"
	"github.com/JakeFAU/loc-crawler/internal/datenorm"
)

// LargestImage picks the biggest variant of the wanted MIME type. An empty
// filter accepts every variant. Variants are ranked by size, then by
// width*height, then treated as zero; ties go to the earliest variant.
func (r *Resource) LargestImage(mimeFilter string) (crawler.Variant, error) {
	return Largest(r.ImageVariants(), mimeFilter)
}

// Largest applies the LargestImage ranking to an arbitrary variant list.
func Largest(variants []crawler.Variant, mimeFilter string) (crawler.Variant, error) {
	var (
		best    crawler.Variant
		bestKey int64
		found   bool
	)
	for _, v := range variants {
		if mimeFilter != "" && !mimetype.EqualsAny(v.MimeType, mimeFilter) {
			continue
		}
		key := rankKey(v)
		if !found || key > bestKey {
			best, bestKey, found = v, key, true
		}
	}
	if !found {
		if mimeFilter == "" {
			return crawler.Variant{}, crawler.ErrNoImageFound
		}
		return crawler.Variant{}, fmt.Errorf("%w for mimetype %q", crawler.ErrNoImageFound, mimeFilter)
	}
	return best, nil
}

func rankKey(v crawler.Variant) int64 {
	switch {
	case v.Size != nil:
		return *v.Size
	case v.Width != nil && v.Height != nil:
		return int64(*v.Width) * int64(*v.Height)
	default:
		return 0
	}
}

// MinimizedRecord assembles the persisted record for this page. Missing date,
// image, citations or access flag fail the whole record.
func (r *Resource) MinimizedRecord(norm *datenorm.Normalizer, mimeFilter string) (crawler.PageRecord, error) {
	raw, err := r.RawDate()
	if err != nil {
		return crawler.PageRecord{}, fmt.Errorf("resource %q: %w", r.id, err)
	}
	date, err := norm.Parse(raw)
	if err != nil {
		return crawler.PageRecord{}, fmt.Errorf("resource %q: %w", r.id, err)
	}
	image, err := r.LargestImage(mimeFilter)
	if err != nil {
		return crawler.PageRecord{}, fmt.Errorf("resource %q: %w", r.id, err)
	}
	citations, err := r.Citations()
	if err != nil {
		return crawler.PageRecord{}, fmt.Errorf("resource %q: %w", r.id, err)
	}
	if !r.hasAccessFlag() {
		return crawler.PageRecord{}, fmt.Errorf("resource %q: %w", r.id, crawler.MissingField("item.access_restricted"))
	}
	return crawler.PageRecord{
		Date:             date,
		DateRaw:          raw,
		Image:            image,
		Citations:        citations,
		AccessRestricted: r.AccessRestricted(),
	}, nil
}
