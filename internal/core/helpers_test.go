package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fixedNow is the clock used by date-sensitive tests.
var fixedNow = time.Date(2026, time.June, 15, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func testValidator() *Validator {
	return &Validator{Now: fixedClock}
}

// student builds a derived record with the given code and scores.
// A negative score means absent.
func student(code string, math, lit, eng float64) StudentRecord {
	opt := func(v float64) *float64 {
		if v < 0 {
			return nil
		}
		return Float(v)
	}
	return Derive(StudentRecord{
		ID: "id-" + code,
		StudentFields: StudentFields{
			StudentCode:     code,
			FirstName:       "First",
			LastName:        code,
			MathScore:       opt(math),
			LiteratureScore: opt(lit),
			EnglishScore:    opt(eng),
		},
	})
}

func codes(records []StudentRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.StudentCode
	}
	return out
}

// ----------------------------------------------------------------------------
// fakeStore is an in-memory Persistence with call recording and injectable
// failures.
// ----------------------------------------------------------------------------

type fakeStore struct {
	mu       sync.Mutex
	pageSize int
	records  []StudentRecord
	nextID   int

	listErr   error
	createErr map[string]error // by student code
	updateErr map[string]error // by student code

	creates []StudentFields
	updates []StudentFields
	lists   int
}

func newFakeStore(pageSize int, seed ...StudentRecord) *fakeStore {
	f := &fakeStore{
		pageSize:  pageSize,
		createErr: map[string]error{},
		updateErr: map[string]error{},
	}
	for _, r := range seed {
		if r.ID == "" {
			f.nextID++
			r.ID = fmt.Sprintf("seed-%d", f.nextID)
		}
		f.records = append(f.records, r)
	}
	return f
}

func (f *fakeStore) List(_ context.Context, page int) (ListPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return ListPage{}, f.listErr
	}
	start := (page - 1) * f.pageSize
	if start >= len(f.records) || start < 0 {
		return ListPage{Items: []StudentRecord{}}, nil
	}
	end := min(start+f.pageSize, len(f.records))
	items := append([]StudentRecord(nil), f.records[start:end]...)
	return ListPage{Items: items, HasNext: end < len(f.records)}, nil
}

func (f *fakeStore) Get(_ context.Context, id string) (StudentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			return r, nil
		}
	}
	return StudentRecord{}, &RemoteError{Op: "get", StatusCode: 404, Err: ErrNotFound}
}

func (f *fakeStore) Create(_ context.Context, fields StudentFields) (StudentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, fields)
	if err := f.createErr[fields.StudentCode]; err != nil {
		return StudentRecord{}, err
	}
	f.nextID++
	r := StudentRecord{ID: fmt.Sprintf("new-%d", f.nextID), StudentFields: fields}
	f.records = append(f.records, r)
	return r, nil
}

func (f *fakeStore) Update(_ context.Context, id string, fields StudentFields) (StudentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, fields)
	if err := f.updateErr[fields.StudentCode]; err != nil {
		return StudentRecord{}, err
	}
	for i, r := range f.records {
		if r.ID == id {
			f.records[i].StudentFields = fields
			return f.records[i], nil
		}
	}
	return StudentRecord{}, &RemoteError{Op: "update", StatusCode: 404, Err: ErrNotFound}
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.records {
		if r.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return &RemoteError{Op: "delete", StatusCode: 404, Err: ErrNotFound}
}

func (f *fakeStore) BulkDelete(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.records))
	f.records = nil
	return n, nil
}
