package pgstore

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/gradebook/internal/core"
)

// toPgText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func toPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// toPgDate converts a YYYY-MM-DD string to pgtype.Date.
func toPgDate(s string) pgtype.Date {
	t, err := core.ParseDate(s)
	if err != nil {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}

// toPgFloat8 converts an optional score.
func toPgFloat8(v *float64) pgtype.Float8 {
	if v == nil {
		return pgtype.Float8{Valid: false}
	}
	return pgtype.Float8{Float64: *v, Valid: true}
}

// toPgUUID converts a string to pgtype.UUID.
// Returns invalid if the string is empty or not a valid UUID.
func toPgUUID(s string) pgtype.UUID {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

func fromPgText(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

func fromPgDate(d pgtype.Date) string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format(core.DateLayout)
}

func fromPgFloat8(f pgtype.Float8) *float64 {
	if !f.Valid {
		return nil
	}
	return core.Float(f.Float64)
}

func fromPgUUID(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

// row is the column set of the students table.
type row struct {
	ID              pgtype.UUID
	StudentCode     string
	FirstName       string
	LastName        string
	Email           pgtype.Text
	BirthDate       pgtype.Date
	Hometown        pgtype.Text
	MathScore       pgtype.Float8
	LiteratureScore pgtype.Float8
	EnglishScore    pgtype.Float8
}

func (r *row) scanArgs() []any {
	return []any{
		&r.ID, &r.StudentCode, &r.FirstName, &r.LastName, &r.Email,
		&r.BirthDate, &r.Hometown, &r.MathScore, &r.LiteratureScore,
		&r.EnglishScore,
	}
}

func (r row) record() core.StudentRecord {
	return core.StudentRecord{
		ID: fromPgUUID(r.ID),
		StudentFields: core.StudentFields{
			StudentCode:     r.StudentCode,
			FirstName:       r.FirstName,
			LastName:        r.LastName,
			Email:           fromPgText(r.Email),
			BirthDate:       fromPgDate(r.BirthDate),
			Hometown:        fromPgText(r.Hometown),
			MathScore:       fromPgFloat8(r.MathScore),
			LiteratureScore: fromPgFloat8(r.LiteratureScore),
			EnglishScore:    fromPgFloat8(r.EnglishScore),
		},
	}
}

// writeArgs returns the insert/update parameters for f, in column order
// after id.
func writeArgs(f core.StudentFields, now time.Time) []any {
	return []any{
		f.StudentCode,
		f.FirstName,
		f.LastName,
		toPgText(f.Email),
		toPgDate(f.BirthDate),
		toPgText(f.Hometown),
		toPgFloat8(f.MathScore),
		toPgFloat8(f.LiteratureScore),
		toPgFloat8(f.EnglishScore),
		pgtype.Timestamptz{Time: now, Valid: true},
	}
}
