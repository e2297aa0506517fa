package record

import (
	"bytes"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/JakeFAU/loc-crawler/internal/crawler"
)

// storedRecord accepts both the current field names and the earlier
// "jpeg"/"cite_this" spelling, whose dates carried a time suffix
// ("1950-01-01 00:00:00").
type storedRecord struct {
	Date             json.RawMessage            `json:"date"`
	DateRaw          json.RawMessage            `json:"date_raw"`
	Image            *crawler.Variant           `json:"image"`
	JPEG             *crawler.Variant           `json:"jpeg"`
	Citations        map[string]json.RawMessage `json:"citations"`
	CiteThis         map[string]json.RawMessage `json:"cite_this"`
	AccessRestricted bool                       `json:"access_restricted"`
}

func decodeRecord(body json.RawMessage) (crawler.PageRecord, error) {
	if isNull(body) {
		return crawler.PageRecord{}, nil
	}
	var in storedRecord
	if err := json.Unmarshal(body, &in); err != nil {
		return crawler.PageRecord{}, fmt.Errorf("decode page record: %w", err)
	}

	out := crawler.PageRecord{
		DateRaw:          jsonText(in.DateRaw),
		AccessRestricted: in.AccessRestricted,
	}
	if date := jsonText(in.Date); date != "" {
		if len(date) > 10 {
			date = date[:10]
		}
		d, err := civil.ParseDate(date)
		if err != nil {
			return crawler.PageRecord{}, fmt.Errorf("decode page record date: %w", err)
		}
		out.Date = d
	}
	switch {
	case in.Image != nil:
		out.Image = *in.Image
	case in.JPEG != nil:
		out.Image = *in.JPEG
	}
	citations := in.Citations
	if citations == nil {
		citations = in.CiteThis
	}
	if citations != nil {
		out.Citations = make(map[string]string, len(citations))
		for style, value := range citations {
			out.Citations[style] = jsonText(value)
		}
	}
	return out, nil
}

// jsonText returns a JSON string's value, or the literal text of any other
// JSON value.
func jsonText(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
