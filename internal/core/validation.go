package core

// validation.go provides the field-level rules shared by interactive edits and
// CSV import.
//
// Validation only reports. Nothing is corrected silently; callers decide
// whether an error blocks the operation (interactive form) or skips the row
// (bulk import).

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Validation limits.
const (
	MinStudentAge  = 15
	MaxStudentAge  = 100
	MaxNameLength  = 50
	MinScore       = 0.0
	MaxScore       = 10.0
	studentCodeMin = 6
	studentCodeMax = 12
)

var (
	studentCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{6,12}$`)
	emailPattern       = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// FieldError represents a single validation error for a field.
type FieldError struct {
	Field   Field  `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// FieldErrors maps each failing field to its message.
type FieldErrors map[Field]string

// Add records msg for field unless the field already has an error.
func (fe FieldErrors) Add(field Field, msg string) {
	if _, exists := fe[field]; !exists {
		fe[field] = msg
	}
}

// List returns the errors in display order. Unknown fields sort last by name.
func (fe FieldErrors) List() []FieldError {
	out := make([]FieldError, 0, len(fe))
	seen := make(map[Field]bool, len(fe))
	for _, f := range Fields {
		if msg, ok := fe[f]; ok {
			out = append(out, FieldError{Field: f, Message: msg})
			seen[f] = true
		}
	}
	var rest []FieldError
	for f, msg := range fe {
		if !seen[f] {
			rest = append(rest, FieldError{Field: f, Message: msg})
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Field < rest[j].Field })
	return append(out, rest...)
}

// Error joins all messages, in display order.
func (fe FieldErrors) Error() string {
	list := fe.List()
	parts := make([]string, len(list))
	for i, e := range list {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// ValidationFailedError is returned when an interactive create or update is
// blocked by field errors.
type ValidationFailedError struct {
	Errors FieldErrors
}

func (e *ValidationFailedError) Error() string {
	return "validation failed: " + e.Errors.Error()
}

// Validator applies the field rules. Now supplies "today" for the birth date
// window and defaults to time.Now.
type Validator struct {
	Now func() time.Time
}

// NewValidator returns a Validator using the wall clock.
func NewValidator() *Validator {
	return &Validator{Now: time.Now}
}

var defaultValidator = NewValidator()

// ValidateField checks one raw value with the default validator.
func ValidateField(field Field, value string) error {
	return defaultValidator.ValidateField(field, value)
}

// ValidateRecord checks every field of c with the default validator.
func ValidateRecord(c Candidate) FieldErrors {
	return defaultValidator.ValidateRecord(c)
}

// ValidateField checks one raw value. It returns nil when the value is
// acceptable, or a FieldError describing the first broken rule.
func (v *Validator) ValidateField(field Field, value string) error {
	if msg := v.check(field, strings.TrimSpace(value)); msg != "" {
		return FieldError{Field: field, Message: msg}
	}
	return nil
}

// ValidateRecord checks every known field of c and returns the failures.
// The returned map is empty, never nil, when c is valid.
func (v *Validator) ValidateRecord(c Candidate) FieldErrors {
	errs := make(FieldErrors)
	for _, field := range Fields {
		if msg := v.check(field, strings.TrimSpace(c[field])); msg != "" {
			errs.Add(field, msg)
		}
	}
	return errs
}

// ValidateFields checks typed fields by way of their raw form.
func (v *Validator) ValidateFields(f StudentFields) FieldErrors {
	return v.ValidateRecord(f.Candidate())
}

func (v *Validator) check(field Field, value string) string {
	switch field {
	case FieldStudentCode:
		if value == "" {
			return "is required"
		}
		if !studentCodePattern.MatchString(value) {
			return fmt.Sprintf("must be %d-%d letters or digits", studentCodeMin, studentCodeMax)
		}
	case FieldFirstName, FieldLastName:
		if value == "" {
			return "is required"
		}
		if utf8.RuneCountInString(value) > MaxNameLength {
			return fmt.Sprintf("must be between 1 and %d characters", MaxNameLength)
		}
	case FieldEmail:
		if value != "" && !emailPattern.MatchString(value) {
			return "is not a valid email address"
		}
	case FieldBirthDate:
		if value == "" {
			return ""
		}
		d, err := ParseDate(value)
		if err != nil {
			return "must be a date in YYYY-MM-DD format"
		}
		earliest, latest := v.birthDateWindow()
		if d.Before(earliest) || d.After(latest) {
			return fmt.Sprintf("age must be between %d and %d years", MinStudentAge, MaxStudentAge)
		}
	case FieldMathScore, FieldLiteratureScore, FieldEnglishScore:
		score, err := ParseScore(value)
		if err != nil {
			return "must be a number"
		}
		if score != nil && (*score < MinScore || *score > MaxScore) {
			return fmt.Sprintf("must be between %g and %g", MinScore, MaxScore)
		}
	}
	return ""
}

// birthDateWindow returns [today-100y, today-15y] as UTC dates.
func (v *Validator) birthDateWindow() (earliest, latest time.Time) {
	now := time.Now
	if v != nil && v.Now != nil {
		now = v.Now
	}
	y, m, d := now().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return today.AddDate(-MaxStudentAge, 0, 0), today.AddDate(-MinStudentAge, 0, 0)
}

// CandidateFields converts a valid candidate into typed fields.
// Call it only after ValidateRecord reported no errors.
func CandidateFields(c Candidate) StudentFields {
	f := StudentFields{
		StudentCode: c[FieldStudentCode],
		FirstName:   c[FieldFirstName],
		LastName:    c[FieldLastName],
		Email:       c[FieldEmail],
		BirthDate:   c[FieldBirthDate],
		Hometown:    c[FieldHometown],
	}
	f.MathScore, _ = ParseScore(c[FieldMathScore])
	f.LiteratureScore, _ = ParseScore(c[FieldLiteratureScore])
	f.EnglishScore, _ = ParseScore(c[FieldEnglishScore])
	return f.Normalize()
}
