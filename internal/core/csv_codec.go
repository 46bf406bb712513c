package core

// csv_codec.go reads and writes the student CSV exchange format.
//
// The tokenizer is a two-state machine (unquoted, quoted) rather than
// encoding/csv: unquoted field boundaries are trimmed, a stray quote inside
// an unquoted field is kept as text, and an unterminated quoted field is
// accepted up to the end of the line. encoding/csv rejects the last two.

import (
	"fmt"
	"strings"
)

// CSV column labels, in export order.
const (
	ColStudentCode     = "Mã số sinh viên"
	ColFullName        = "Họ tên"
	ColEmail           = "Email"
	ColBirthDate       = "Ngày sinh"
	ColHometown        = "Quê quán"
	ColMathScore       = "Điểm Toán"
	ColLiteratureScore = "Điểm Văn"
	ColEnglishScore    = "Điểm Anh"
)

// Columns is the fixed header written by ToCSV.
var Columns = []string{
	ColStudentCode,
	ColFullName,
	ColEmail,
	ColBirthDate,
	ColHometown,
	ColMathScore,
	ColLiteratureScore,
	ColEnglishScore,
}

// RequiredColumns must be present in an imported header.
var RequiredColumns = []string{ColStudentCode, ColFullName, ColEmail}

// bom is U+FEFF as a string.
const bom = "\ufeff"

// RowError is a problem attributed to one line of an imported document.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// DocumentStructureError means the document cannot be imported at all.
type DocumentStructureError struct {
	Missing []string
	Empty   bool
}

func (e *DocumentStructureError) Error() string {
	if e.Empty {
		return "empty file: no header row found"
	}
	return "missing required column: " + strings.Join(e.Missing, ", ")
}

// ImportRow is a parsed candidate plus the physical line it came from.
type ImportRow struct {
	Line   int           `json:"line"`
	Fields StudentFields `json:"fields"`
}

// Document is the result of ParseDocument.
type Document struct {
	Header []string
	Rows   []ImportRow
	Errors []RowError
	// Skipped counts blank and placeholder rows.
	Skipped int
}

// ParseRow splits one line into fields. Commas inside double quotes are
// text, a doubled quote inside quotes is a literal quote, and whitespace
// around unquoted content is trimmed.
func ParseRow(line string) []string {
	var (
		fields  []string
		buf     strings.Builder
		pending strings.Builder // whitespace seen after content, kept only if more content follows
		started bool
		quoted  bool
	)

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if quoted {
			if r == '"' {
				if i+1 < len(runes) && runes[i+1] == '"' {
					buf.WriteRune('"')
					i++
					continue
				}
				quoted = false
				continue
			}
			buf.WriteRune(r)
			continue
		}

		switch {
		case r == ',':
			fields = append(fields, buf.String())
			buf.Reset()
			pending.Reset()
			started = false
		case r == '"' && !started:
			quoted = true
			started = true
		case isSpace(r):
			if started {
				pending.WriteRune(r)
			}
		default:
			if pending.Len() > 0 {
				buf.WriteString(pending.String())
				pending.Reset()
			}
			buf.WriteRune(r)
			started = true
		}
	}

	return append(fields, buf.String())
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\v' || r == '\f' || r == '\u00a0'
}

// Codec parses and serializes documents. Cell semantics come from the
// Validator so import and interactive edits agree.
type Codec struct {
	validator *Validator
}

// NewCodec returns a codec that checks cells with v. A nil v uses the
// wall-clock validator.
func NewCodec(v *Validator) *Codec {
	if v == nil {
		v = NewValidator()
	}
	return &Codec{validator: v}
}

// record is one logical row and the physical line it starts on.
type record struct {
	number int
	text   string
}

// splitRecords cuts text into rows at newlines outside quoted fields. A
// quote opens a quoted field only where ParseRow would treat it so: at the
// start of a field, ignoring leading whitespace.
func splitRecords(text string) []record {
	var (
		out     []record
		buf     strings.Builder
		line    = 1
		start   = 1
		quoted  bool
		started bool
		escaped bool
	)
	for i, r := range text {
		switch {
		case escaped:
			// Second quote of a doubled pair inside a quoted field.
			escaped = false
		case quoted:
			if r == '"' {
				if i+1 < len(text) && text[i+1] == '"' {
					escaped = true
				} else {
					quoted = false
				}
			} else if r == '\n' {
				line++
			}
		case r == '\n':
			out = append(out, record{number: start, text: buf.String()})
			buf.Reset()
			line++
			start = line
			started = false
			continue
		case r == ',':
			started = false
		case r == '"' && !started:
			quoted = true
			started = true
		case isSpace(r):
		default:
			started = true
		}
		buf.WriteRune(r)
	}
	return append(out, record{number: start, text: buf.String()})
}

// ParseDocument parses an imported document. A missing required column is
// returned as *DocumentStructureError with no rows. Row problems are
// collected in Document.Errors and never abort the parse.
//
// Line numbers are physical, 1-based line numbers in text, so they match
// what the user sees in an editor even when blank lines are present. A row
// whose quoted field spans lines reports the line it starts on.
func (c *Codec) ParseDocument(text string) (*Document, error) {
	text = strings.TrimPrefix(strings.ToValidUTF8(text, "\ufffd"), bom)

	var lines []record
	for _, r := range splitRecords(text) {
		if t := strings.TrimSpace(r.text); t != "" {
			lines = append(lines, record{number: r.number, text: t})
		}
	}
	if len(lines) == 0 {
		return nil, &DocumentStructureError{Missing: RequiredColumns, Empty: true}
	}

	header := ParseRow(lines[0].text)
	index := headerIndex(header)

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := index[foldText(col)]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &DocumentStructureError{Missing: missing}
	}

	doc := &Document{Header: header}
	for _, l := range lines[1:] {
		cells := ParseRow(l.text)

		if isEmptyRow(cells) {
			doc.Skipped++
			continue
		}
		if len(cells) != len(header) {
			doc.Errors = append(doc.Errors, RowError{
				Line:    l.number,
				Message: fmt.Sprintf("expected %d columns, found %d", len(header), len(cells)),
			})
			continue
		}
		if isPlaceholderRow(cells) {
			doc.Skipped++
			continue
		}

		fields, problems := c.mapRow(cells, index)
		if len(problems) > 0 {
			doc.Errors = append(doc.Errors, RowError{Line: l.number, Message: strings.Join(problems, "; ")})
			continue
		}
		doc.Rows = append(doc.Rows, ImportRow{Line: l.number, Fields: fields})
	}
	return doc, nil
}

// ParseDocument parses text with a wall-clock validator.
func ParseDocument(text string) (*Document, error) {
	return NewCodec(nil).ParseDocument(text)
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := foldText(strings.TrimSpace(h))
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	return index
}

func isEmptyRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// isPlaceholderRow reports whether any cell is an instructional hint such
// as "(YYYY-MM-DD)".
func isPlaceholderRow(cells []string) bool {
	for _, c := range cells {
		c = strings.TrimSpace(c)
		if len(c) >= 2 && strings.HasPrefix(c, "(") && strings.HasSuffix(c, ")") {
			return true
		}
	}
	return false
}

// mapRow converts cells to fields. Date and score cells are checked with
// the validator; each failure is reported with its column label.
func (c *Codec) mapRow(cells []string, index map[string]int) (StudentFields, []string) {
	cell := func(col string) string {
		if i, ok := index[foldText(col)]; ok && i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}

	var problems []string
	check := func(col string, field Field, value string) bool {
		if err := c.validator.ValidateField(field, value); err != nil {
			var msg string
			if fe, ok := err.(FieldError); ok {
				msg = fe.Message
			} else {
				msg = err.Error()
			}
			problems = append(problems, col+": "+msg)
			return false
		}
		return true
	}

	first, last := SplitFullName(cell(ColFullName))
	f := StudentFields{
		StudentCode: cell(ColStudentCode),
		FirstName:   first,
		LastName:    last,
		Email:       cell(ColEmail),
		Hometown:    cell(ColHometown),
	}

	if v := cell(ColBirthDate); v != "" && check(ColBirthDate, FieldBirthDate, v) {
		f.BirthDate = v
	}

	scores := []struct {
		col   string
		field Field
		dst   **float64
	}{
		{ColMathScore, FieldMathScore, &f.MathScore},
		{ColLiteratureScore, FieldLiteratureScore, &f.LiteratureScore},
		{ColEnglishScore, FieldEnglishScore, &f.EnglishScore},
	}
	for _, s := range scores {
		v := cell(s.col)
		if v == "" || !check(s.col, s.field, v) {
			continue
		}
		*s.dst, _ = ParseScore(v)
	}

	return f, problems
}

// ToCSV serializes records: BOM, the fixed header, then one row per record
// with every cell quoted. Absent scores are written as 0.
func ToCSV(records []StudentRecord) string {
	var b strings.Builder
	b.WriteString(bom)
	writeCSVRow(&b, Columns)
	for _, r := range records {
		writeCSVRow(&b, []string{
			r.StudentCode,
			r.FullName(),
			r.Email,
			r.BirthDate,
			r.Hometown,
			FormatScore(r.MathScore, "0"),
			FormatScore(r.LiteratureScore, "0"),
			FormatScore(r.EnglishScore, "0"),
		})
	}
	return b.String()
}

func writeCSVRow(b *strings.Builder, cells []string) {
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(c, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}

// templateBlankRows is the number of empty rows appended to the template.
const templateBlankRows = 5

// TemplateCSV returns an import template: the header, one row of
// parenthesized hints, three sample rows and a few blank rows.
func TemplateCSV() string {
	var b strings.Builder
	b.WriteString(bom)
	writeCSVRow(&b, Columns)
	writeCSVRow(&b, []string{
		"(6-12 letters or digits)",
		"(Full name, last word is the last name)",
		"(name@example.com)",
		"(YYYY-MM-DD)",
		"(City or province)",
		"(0-10)",
		"(0-10)",
		"(0-10)",
	})
	samples := [][]string{
		{"SV2024001", "Nguyễn Văn An", "an.nguyen@example.com", "2004-03-15", "Hà Nội", "8.5", "7", "9"},
		{"SV2024002", "Trần Thị Bình", "binh.tran@example.com", "2005-11-02", "Đà Nẵng", "6", "8.25", "7.5"},
		{"SV2024003", "Lê Hoàng Cường", "", "2003-07-21", "Huế", "9.5", "9", "8"},
	}
	for _, s := range samples {
		writeCSVRow(&b, s)
	}
	blank := make([]string, len(Columns))
	for range templateBlankRows {
		writeCSVRow(&b, blank)
	}
	return b.String()
}
