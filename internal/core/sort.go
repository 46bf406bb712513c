package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// SortKey names a column the table can be ordered by.
type SortKey string

const (
	SortStudentCode     SortKey = "studentCode"
	SortFirstName       SortKey = "firstName"
	SortLastName        SortKey = "lastName"
	SortFullName        SortKey = "fullName"
	SortEmail           SortKey = "email"
	SortBirthDate       SortKey = "birthDate"
	SortHometown        SortKey = "hometown"
	SortMathScore       SortKey = "mathScore"
	SortLiteratureScore SortKey = "literatureScore"
	SortEnglishScore    SortKey = "englishScore"
	SortAverageScore    SortKey = "averageScore"
	SortGrade           SortKey = "grade"
)

// Direction is the sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ErrUnknownSortKey is returned when a sort key is not in the registry.
var ErrUnknownSortKey = errors.New("unknown sort key")

// ErrUnknownDirection is returned for a direction other than asc or desc.
var ErrUnknownDirection = errors.New("unknown sort direction")

// comparator returns <0, 0 or >0.
type comparator func(a, b *StudentRecord) int

// comparators is the closed set of sortable keys.
var comparators = map[SortKey]comparator{
	SortStudentCode: textKey(func(r *StudentRecord) string { return r.StudentCode }),
	SortFirstName:   textKey(func(r *StudentRecord) string { return r.FirstName }),
	SortLastName:    textKey(func(r *StudentRecord) string { return r.LastName }),
	SortFullName:    textKey(func(r *StudentRecord) string { return r.FullName() }),
	SortEmail:       textKey(func(r *StudentRecord) string { return r.Email }),
	SortBirthDate:   textKey(func(r *StudentRecord) string { return r.BirthDate }),
	SortHometown:    textKey(func(r *StudentRecord) string { return r.Hometown }),

	SortMathScore:       numberKey(func(r *StudentRecord) *float64 { return r.MathScore }),
	SortLiteratureScore: numberKey(func(r *StudentRecord) *float64 { return r.LiteratureScore }),
	SortEnglishScore:    numberKey(func(r *StudentRecord) *float64 { return r.EnglishScore }),
	SortAverageScore:    numberKey(func(r *StudentRecord) *float64 { return r.AverageScore }),

	SortGrade: func(a, b *StudentRecord) int {
		return a.Grade.Rank() - b.Grade.Rank()
	},
}

// SortKeys returns every registered key.
func SortKeys() []SortKey {
	keys := make([]SortKey, 0, len(comparators))
	for k := range comparators {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// SortSpec selects a key and a direction.
type SortSpec struct {
	Key       SortKey   `json:"key"`
	Direction Direction `json:"direction"`
}

// DefaultSort orders by student code, ascending.
var DefaultSort = SortSpec{Key: SortStudentCode, Direction: Asc}

// NewSortSpec validates key and direction against the registry.
// An empty direction means ascending.
func NewSortSpec(key string, dir string) (SortSpec, error) {
	k := SortKey(strings.TrimSpace(key))
	if _, ok := comparators[k]; !ok {
		return SortSpec{}, fmt.Errorf("%w: %q", ErrUnknownSortKey, key)
	}
	d := Direction(strings.ToLower(strings.TrimSpace(dir)))
	switch d {
	case "":
		d = Asc
	case Asc, Desc:
	default:
		return SortSpec{}, fmt.Errorf("%w: %q", ErrUnknownDirection, dir)
	}
	return SortSpec{Key: k, Direction: d}, nil
}

// Sort returns a stably sorted copy of records. Descending order negates the
// comparator so ties keep their prior relative order in both directions.
// A spec with an unregistered key falls back to DefaultSort.
func Sort(records []StudentRecord, spec SortSpec) []StudentRecord {
	cmp, ok := comparators[spec.Key]
	if !ok {
		cmp = comparators[DefaultSort.Key]
	}
	sign := 1
	if spec.Direction == Desc {
		sign = -1
	}

	out := make([]StudentRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return sign*cmp(&out[i], &out[j]) < 0
	})
	return out
}

// textKey compares case-insensitively. Empty values sort first.
func textKey(get func(*StudentRecord) string) comparator {
	return func(a, b *StudentRecord) int {
		return strings.Compare(foldText(get(a)), foldText(get(b)))
	}
}

// numberKey compares numerically. Nil sorts before every number.
func numberKey(get func(*StudentRecord) *float64) comparator {
	return func(a, b *StudentRecord) int {
		x, y := get(a), get(b)
		switch {
		case x == nil && y == nil:
			return 0
		case x == nil:
			return -1
		case y == nil:
			return 1
		case *x < *y:
			return -1
		case *x > *y:
			return 1
		default:
			return 0
		}
	}
}
