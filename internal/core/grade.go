package core

import (
	"math"
	"strings"
)

// Grade is a letter computed from an average score. The zero value means
// the average is undefined and no grade applies.
type Grade string

const (
	GradeNone Grade = ""
	GradeA    Grade = "A"
	GradeB    Grade = "B"
	GradeC    Grade = "C"
	GradeD    Grade = "D"
	GradeF    Grade = "F"
)

// Grades lists the concrete grades from best to worst.
var Grades = []Grade{GradeA, GradeB, GradeC, GradeD, GradeF}

// GradeBand is one row of the grade table.
type GradeBand struct {
	Grade Grade
	Min   float64 // inclusive
}

// GradeTable is evaluated highest threshold first. F has no lower bound.
var GradeTable = []GradeBand{
	{Grade: GradeA, Min: 8.5},
	{Grade: GradeB, Min: 7.0},
	{Grade: GradeC, Min: 5.5},
	{Grade: GradeD, Min: 4.0},
	{Grade: GradeF, Min: math.Inf(-1)},
}

// GradeFor returns the grade for an average, or GradeNone when avg is nil.
func GradeFor(avg *float64) Grade {
	if avg == nil || math.IsNaN(*avg) {
		return GradeNone
	}
	for _, band := range GradeTable {
		if *avg >= band.Min {
			return band.Grade
		}
	}
	return GradeF
}

// Rank orders grades for sorting: A=1 through F=5, undefined=6.
func (g Grade) Rank() int {
	for i, known := range Grades {
		if g == known {
			return i + 1
		}
	}
	return len(Grades) + 1
}

// Valid reports whether g is one of the concrete grades.
func (g Grade) Valid() bool {
	return g.Rank() <= len(Grades)
}

// ParseGrade parses a grade letter case-insensitively.
func ParseGrade(s string) (Grade, bool) {
	g := Grade(strings.ToUpper(strings.TrimSpace(s)))
	if !g.Valid() {
		return GradeNone, false
	}
	return g, true
}

// PresentScoreAverage is the RecordStore averaging policy: the mean of the
// subject scores that are present. Absent scores are excluded from both
// numerator and denominator; nil is returned when no score is present.
func PresentScoreAverage(f StudentFields) *float64 {
	var sum float64
	var n int
	for _, field := range SubjectFields {
		if s := f.Score(field); s != nil {
			sum += *s
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

// ImportPreviewAverage is the CSV averaging policy: absent scores count as 0
// and the mean is always taken over all three subjects.
func ImportPreviewAverage(f StudentFields) float64 {
	var sum float64
	for _, field := range SubjectFields {
		if s := f.Score(field); s != nil {
			sum += *s
		}
	}
	return sum / float64(len(SubjectFields))
}

// Derive returns r with AverageScore and Grade recomputed from its scores.
func Derive(r StudentRecord) StudentRecord {
	r.AverageScore = PresentScoreAverage(r.StudentFields)
	r.Grade = GradeFor(r.AverageScore)
	return r
}
