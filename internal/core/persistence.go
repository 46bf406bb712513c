package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Persistence is the remote store contract. The core consumes it and never
// assumes how the records are stored. Page size is decided by the store.
type Persistence interface {
	// List returns one page of records, 1-based.
	List(ctx context.Context, page int) (ListPage, error)
	Get(ctx context.Context, id string) (StudentRecord, error)
	// Create and Update may fail with a *RemoteError carrying field errors.
	Create(ctx context.Context, f StudentFields) (StudentRecord, error)
	Update(ctx context.Context, id string, f StudentFields) (StudentRecord, error)
	Delete(ctx context.Context, id string) error
	// BulkDelete removes every record and returns how many were deleted.
	BulkDelete(ctx context.Context) (int64, error)
}

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("student not found")

// ErrTooManyPages is returned when a listing never signals its last page.
var ErrTooManyPages = errors.New("listing exceeded page limit")

// MaxListPages bounds LoadAll against a store that always reports more pages.
const MaxListPages = 10000

// RemoteError is a failed call to the persistence contract.
type RemoteError struct {
	Op         string
	StatusCode int
	// Fields is set when the store rejected the record's values.
	Fields []FieldError
	Err    error
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if len(e.Fields) > 0 {
		b.WriteString(": validation failed: ")
		for i, f := range e.Fields {
			if i > 0 {
				b.WriteString("; ")
			}
			b.WriteString(f.Error())
		}
		return b.String()
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// FieldErrors returns the store's field errors as a map.
func (e *RemoteError) FieldErrors() FieldErrors {
	fe := make(FieldErrors, len(e.Fields))
	for _, f := range e.Fields {
		fe.Add(f.Field, f.Message)
	}
	return fe
}

// LoadAll assembles the full working set by requesting page 1, 2, ... until
// the store reports no further pages or returns an empty page.
func LoadAll(ctx context.Context, p Persistence) ([]StudentRecord, error) {
	var all []StudentRecord
	for page := 1; page <= MaxListPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := p.List(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("list page %d: %w", page, err)
		}
		all = append(all, res.Items...)
		if !res.HasNext || len(res.Items) == 0 {
			return all, nil
		}
	}
	return nil, ErrTooManyPages
}

// CheckFields runs server-side validation for a store adapter. Invalid
// fields come back as a 400 *RemoteError carrying the field errors.
func CheckFields(op string, v *Validator, f StudentFields) error {
	errs := v.ValidateFields(f)
	if len(errs) == 0 {
		return nil
	}
	return &RemoteError{Op: op, StatusCode: 400, Fields: errs.List()}
}

// DuplicateCodeError reports a student code that is already taken.
func DuplicateCodeError(op string) *RemoteError {
	return &RemoteError{
		Op:         op,
		StatusCode: 409,
		Fields:     []FieldError{{Field: FieldStudentCode, Message: "already exists"}},
	}
}
