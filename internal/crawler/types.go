// Package crawler defines core types shared across subsystems.
package crawler

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// DefaultMimeType is the variant type selected when no filter is configured.
const DefaultMimeType = "image/jpeg"

// Variant describes one downloadable rendition of an item page. Width, Height
// and Size are pointers because upstream omits them independently and the
// selector needs to know which ones were present.
type Variant struct {
	URL      string `json:"url"`
	MimeType string `json:"mimetype,omitempty"`
	Width    *int   `json:"width,omitempty"`
	Height   *int   `json:"height,omitempty"`
	Size     *int64 `json:"size,omitempty"`
}

// IsZero reports whether the variant carries no URL.
func (v Variant) IsZero() bool {
	return v.URL == "" && v.MimeType == ""
}

// UnmarshalJSON accepts integral floats for the numeric fields since some
// providers serialize dimensions as 1024.0.
func (v *Variant) UnmarshalJSON(data []byte) error {
	var raw struct {
		URL      string   `json:"url"`
		MimeType string   `json:"mimetype"`
		Width    *float64 `json:"width"`
		Height   *float64 `json:"height"`
		Size     *float64 `json:"size"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode variant: %w", err)
	}
	*v = Variant{URL: raw.URL, MimeType: raw.MimeType}
	if raw.Width != nil {
		w := int(math.Round(*raw.Width))
		v.Width = &w
	}
	if raw.Height != nil {
		h := int(math.Round(*raw.Height))
		v.Height = &h
	}
	if raw.Size != nil {
		s := int64(math.Round(*raw.Size))
		v.Size = &s
	}
	return nil
}

// PageRecord is the minimized record persisted for each item page.
type PageRecord struct {
	Date             civil.Date        `json:"date,omitzero"`
	DateRaw          string            `json:"date_raw,omitempty"`
	Image            Variant           `json:"image,omitzero"`
	Citations        map[string]string `json:"citations,omitempty"`
	AccessRestricted bool              `json:"access_restricted"`
}

// IsEmpty reports whether the record holds no captured data. Empty records
// are treated as missing so a later run fetches the page again.
func (r PageRecord) IsEmpty() bool {
	return r.Image.URL == "" && r.DateRaw == ""
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// StripID trims leading and trailing path separators from a provider id.
// Every item key in the record goes through this so "/item/x/" and "item/x"
// land on the same entry.
func StripID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "/")
}
