package core

import (
	"strings"
)

// Field names a user-settable StudentRecord attribute.
// Values double as JSON keys and as keys of FieldErrors.
type Field string

const (
	FieldStudentCode     Field = "studentCode"
	FieldFirstName       Field = "firstName"
	FieldLastName        Field = "lastName"
	FieldEmail           Field = "email"
	FieldBirthDate       Field = "birthDate"
	FieldHometown        Field = "hometown"
	FieldMathScore       Field = "mathScore"
	FieldLiteratureScore Field = "literatureScore"
	FieldEnglishScore    Field = "englishScore"
)

// Fields lists every user-settable field in display order.
var Fields = []Field{
	FieldStudentCode,
	FieldFirstName,
	FieldLastName,
	FieldEmail,
	FieldBirthDate,
	FieldHometown,
	FieldMathScore,
	FieldLiteratureScore,
	FieldEnglishScore,
}

// SubjectFields are the three scored subjects, in display order.
var SubjectFields = []Field{FieldMathScore, FieldLiteratureScore, FieldEnglishScore}

// IsKnown reports whether f is one of Fields.
func (f Field) IsKnown() bool {
	for _, k := range Fields {
		if k == f {
			return true
		}
	}
	return false
}

// StudentFields holds the attributes a user may set.
// Empty strings and nil scores mean the value is absent.
type StudentFields struct {
	StudentCode     string   `json:"studentCode"`
	FirstName       string   `json:"firstName"`
	LastName        string   `json:"lastName"`
	Email           string   `json:"email,omitempty"`
	BirthDate       string   `json:"birthDate,omitempty"` // YYYY-MM-DD
	Hometown        string   `json:"hometown,omitempty"`
	MathScore       *float64 `json:"mathScore"`
	LiteratureScore *float64 `json:"literatureScore"`
	EnglishScore    *float64 `json:"englishScore"`
}

// FullName joins first and last name with a single space.
func (f StudentFields) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(f.FirstName) + " " + strings.TrimSpace(f.LastName))
}

// Score returns the score stored for a subject field, or nil.
func (f StudentFields) Score(field Field) *float64 {
	switch field {
	case FieldMathScore:
		return f.MathScore
	case FieldLiteratureScore:
		return f.LiteratureScore
	case FieldEnglishScore:
		return f.EnglishScore
	}
	return nil
}

// HasAnyScore reports whether at least one subject score is present.
func (f StudentFields) HasAnyScore() bool {
	return f.MathScore != nil || f.LiteratureScore != nil || f.EnglishScore != nil
}

// Candidate returns the raw string form of f used by the ValidationEngine.
func (f StudentFields) Candidate() Candidate {
	return Candidate{
		FieldStudentCode:     f.StudentCode,
		FieldFirstName:       f.FirstName,
		FieldLastName:        f.LastName,
		FieldEmail:           f.Email,
		FieldBirthDate:       f.BirthDate,
		FieldHometown:        f.Hometown,
		FieldMathScore:       FormatScore(f.MathScore, ""),
		FieldLiteratureScore: FormatScore(f.LiteratureScore, ""),
		FieldEnglishScore:    FormatScore(f.EnglishScore, ""),
	}
}

// Normalize trims surrounding whitespace from every text attribute.
func (f StudentFields) Normalize() StudentFields {
	f.StudentCode = strings.TrimSpace(f.StudentCode)
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Email = strings.TrimSpace(f.Email)
	f.BirthDate = strings.TrimSpace(f.BirthDate)
	f.Hometown = strings.TrimSpace(f.Hometown)
	return f
}

// StudentRecord is a persisted student plus its derived fields.
// AverageScore and Grade are computed by the RecordStore and never set by users.
type StudentRecord struct {
	ID string `json:"id"`
	StudentFields
	AverageScore *float64 `json:"averageScore"`
	Grade        Grade    `json:"grade,omitempty"`
}

// Candidate is the raw, not yet parsed form of a student as typed into a form
// or read from a CSV cell. Missing keys are treated as empty values.
type Candidate map[Field]string

// ListPage is one page of the persistence listing.
type ListPage struct {
	Items   []StudentRecord `json:"items"`
	HasNext bool            `json:"hasNext"`
}
