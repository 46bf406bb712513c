package core

// convert.go provides conversions between raw cell text and typed student values.
//
// These functions handle the messy reality of user-provided data:
//   - Scores typed with surrounding whitespace
//   - Dates that must be real calendar days (2023-02-30 is rejected)
//   - Free-text full names that need splitting into first/last
//   - Invalid UTF-8 and a leading byte-order mark in uploaded files
//
// Parsing never corrects a value silently: anything that does not convert
// cleanly is reported as an error.

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// DateLayout is the only accepted date format for birth dates.
const DateLayout = "2006-01-02"

// decimalPattern admits plain decimals only. strconv alone would also take
// exponents, hex floats, underscores and the Inf/NaN spellings.
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

var (
	errNotNumber = errors.New("not a number")
	errNotDate   = errors.New("not a date")
)

// ParseScore parses a decimal score. Empty input returns (nil, nil).
// Range checking is left to the ValidationEngine.
func ParseScore(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !decimalPattern.MatchString(s) {
		return nil, errNotNumber
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errNotNumber
	}
	return &v, nil
}

// FormatScore renders a score with the shortest exact representation,
// or absent when s is nil.
func FormatScore(s *float64, absent string) string {
	if s == nil {
		return absent
	}
	return strconv.FormatFloat(*s, 'f', -1, 64)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, errNotDate
	}
	return t, nil
}

// SplitFullName splits a free-text name on whitespace. The last token becomes
// the last name and everything before it the first name. A single token
// yields an empty last name.
func SplitFullName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
	}
}

// Float returns a pointer to v. Handy for building fixtures and forms.
func Float(v float64) *float64 {
	return &v
}

// utf8BOM is the UTF-8 encoding of U+FEFF.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// stripBOM removes a leading UTF-8 byte-order mark.
func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with U+FFFD.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\ufffd')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

// DecodeDocument prepares uploaded bytes for ParseDocument: the BOM is
// stripped and invalid UTF-8 is replaced.
func DecodeDocument(data []byte) string {
	return string(sanitizeUTF8(stripBOM(data)))
}
