// Package datenorm turns free-text archival dates into calendar dates.
//
// Formats are tried in a fixed order and the first match wins, so the order of
// DefaultLayouts is a tie-break policy and must not be reshuffled. Layouts use
// strptime directives:
//
//	%Y  four-digit year
//	%m  month number, one or two digits
//	%d  day of month, one or two digits
//	%B  full English month name
//	%b  three-letter English month abbreviation
//	%%  a literal percent sign
//
// Whitespace in a layout matches one or more whitespace characters, matching
// is case-insensitive and must cover the whole input. Fields a layout does not
// mention default to 1.
package datenorm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"cloud.google.com/go/civil"

	"github.com/JakeFAU/loc-crawler/internal/crawler"
)

// DefaultLayouts is the ordered format table applied by New.
var DefaultLayouts = []string{
	"%Y-%m-%d",
	"%d. %m. %Y",
	"%d-%m-%Y",
	"%d %B %Y",
	"%d. %B %Y",
	"%d. %b. %Y",
	"%d %b %Y",
	"%Y %B %d",
	"%Y %B %d.",
	"%Y %b. %d.",
	"%Y %b %d",
	"%m %Y",
	"%m. %Y",
	"%B %Y",
	"%B. %Y",
	"%B-%Y",
	"%b %Y",
	"%b. %Y",
	"%b-%Y",
	"%Y-%m",
	"%Y %m",
	"%Y-%B",
	"%Y %B",
	"%Y %B.",
	"%Y-%b",
	"%Y %b",
	"%Y %b.",
	"%Y",
	"c%Y.",
}

var (
	fullMonths = []string{
		"january", "february", "march", "april", "may", "june",
		"july", "august", "september", "october", "november", "december",
	}
	abbrMonths = []string{
		"jan", "feb", "mar", "apr", "may", "jun",
		"jul", "aug", "sep", "oct", "nov", "dec",
	}

	// Leading and trailing non-digits, e.g. "[ca. 1920?]" -> "1920".
	edgeNonDigits = regexp.MustCompile(`^\D*(.*?)\D*$`)
)

// Format is one compiled entry of the format table.
type Format struct {
	Layout  string
	pattern *regexp.Regexp
}

// Match parses s against the format. ok is false when the layout does not
// match or describes an impossible date.
func (f Format) Match(s string) (civil.Date, bool) {
	m := f.pattern.FindStringSubmatch(s)
	if m == nil {
		return civil.Date{}, false
	}
	year, month, day := 0, 1, 1
	for i, name := range f.pattern.SubexpNames() {
		if name == "" || i >= len(m) {
			continue
		}
		value := strings.TrimSpace(m[i])
		switch name {
		case "Y":
			year, _ = strconv.Atoi(value)
		case "m":
			month, _ = strconv.Atoi(value)
		case "d":
			day, _ = strconv.Atoi(value)
		case "B":
			month = monthIndex(fullMonths, value)
		case "b":
			month = monthIndex(abbrMonths, value)
		}
	}
	d := civil.Date{Year: year, Month: time.Month(month), Day: day}
	if year < 1 || !d.IsValid() {
		return civil.Date{}, false
	}
	return d, true
}

// Normalizer applies an ordered format table to raw date strings. It holds no
// mutable state and is safe for concurrent use.
type Normalizer struct {
	formats []Format
}

// New returns a Normalizer over DefaultLayouts.
func New() *Normalizer {
	n, err := NewWithLayouts(DefaultLayouts...)
	if err != nil {
		panic(fmt.Sprintf("datenorm: default layouts: %v", err))
	}
	return n
}

// NewWithLayouts compiles a custom format table, preserving its order.
func NewWithLayouts(layouts ...string) (*Normalizer, error) {
	if len(layouts) == 0 {
		return nil, fmt.Errorf("at least one layout is required")
	}
	formats := make([]Format, 0, len(layouts))
	for _, layout := range layouts {
		pattern, err := compileLayout(layout)
		if err != nil {
			return nil, fmt.Errorf("compile layout %q: %w", layout, err)
		}
		formats = append(formats, Format{Layout: layout, pattern: pattern})
	}
	return &Normalizer{formats: formats}, nil
}

// Formats returns a copy of the format table in priority order.
func (n *Normalizer) Formats() []Format {
	return append([]Format(nil), n.formats...)
}

// Candidates returns the strings Parse tries, in order: the raw input and the
// input with leading and trailing non-digit runs removed.
func Candidates(raw string) []string {
	return []string{raw, edgeNonDigits.ReplaceAllString(raw, "$1")}
}

// Parse converts raw into a calendar date. Candidates are the outer loop and
// formats the inner loop; the first (candidate, format) pair that matches wins.
// The stripped candidate can produce a plausible but wrong date for malformed
// input, which is why callers keep the raw text next to the parsed value.
func (n *Normalizer) Parse(raw string) (civil.Date, error) {
	for _, candidate := range Candidates(raw) {
		if d, _, ok := n.match(candidate); ok {
			return d, nil
		}
	}
	return civil.Date{}, &crawler.UnparseableDateError{Raw: raw}
}

// Explain reports which candidate and layout Parse would use for raw.
func (n *Normalizer) Explain(raw string) (candidate string, layout string, err error) {
	for _, c := range Candidates(raw) {
		if _, l, ok := n.match(c); ok {
			return c, l, nil
		}
	}
	return "", "", &crawler.UnparseableDateError{Raw: raw}
}

func (n *Normalizer) match(s string) (civil.Date, string, bool) {
	for _, f := range n.formats {
		if d, ok := f.Match(s); ok {
			return d, f.Layout, true
		}
	}
	return civil.Date{}, "", false
}

func compileLayout(layout string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`(?i)^`)
	seen := map[byte]bool{}
	for i := 0; i < len(layout); i++ {
		ch := layout[i]
		switch {
		case ch == '%':
			if i+1 >= len(layout) {
				return nil, fmt.Errorf("dangling %% at end of layout")
			}
			i++
			directive := layout[i]
			if directive != '%' && seen[directive] {
				return nil, fmt.Errorf("directive %%%c repeated", directive)
			}
			seen[directive] = true
			switch directive {
			case 'Y':
				b.WriteString(`(?P<Y>\d{4})`)
			case 'm':
				b.WriteString(`(?P<m>1[0-2]|0[1-9]|[1-9])`)
			case 'd':
				b.WriteString(`(?P<d>3[01]|[12]\d|0[1-9]|[1-9]| [1-9])`)
			case 'B':
				b.WriteString(`(?P<B>` + strings.Join(fullMonths, "|") + `)`)
			case 'b':
				b.WriteString(`(?P<b>` + strings.Join(abbrMonths, "|") + `)`)
			case '%':
				b.WriteString(`%`)
			default:
				return nil, fmt.Errorf("unsupported directive %%%c", directive)
			}
		case unicode.IsSpace(rune(ch)):
			for i+1 < len(layout) && unicode.IsSpace(rune(layout[i+1])) {
				i++
			}
			b.WriteString(`\s+`)
		default:
			b.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	b.WriteString(`$`)
	pattern, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	return pattern, nil
}

func monthIndex(names []string, value string) int {
	value = strings.ToLower(value)
	for i, name := range names {
		if name == value {
			return i + 1
		}
	}
	return 0
}
