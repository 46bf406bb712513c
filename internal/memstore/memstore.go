// Package memstore is an in-process implementation of the student store
// contract. It backs the memory backend and handler tests.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/JonMunkholm/gradebook/internal/core"
)

// DefaultPageSize is the list page size when none is configured.
const DefaultPageSize = 50

// Store keeps records in insertion order.
type Store struct {
	mu        sync.RWMutex
	pageSize  int
	validator *core.Validator
	records   []core.StudentRecord
	byID      map[string]int
}

// New returns an empty Store. A pageSize below 1 uses DefaultPageSize.
func New(pageSize int) *Store {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return &Store{
		pageSize:  pageSize,
		validator: core.NewValidator(),
		byID:      make(map[string]int),
	}
}

// WithValidator replaces the server-side validator.
func (s *Store) WithValidator(v *core.Validator) *Store {
	s.validator = v
	return s
}

var _ core.Persistence = (*Store)(nil)

// List returns one page of records. Pages past the end are empty.
func (s *Store) List(_ context.Context, page int) (core.ListPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if page < 1 {
		page = 1
	}
	start := (page - 1) * s.pageSize
	if start >= len(s.records) {
		return core.ListPage{Items: []core.StudentRecord{}}, nil
	}
	end := min(start+s.pageSize, len(s.records))
	items := make([]core.StudentRecord, end-start)
	copy(items, s.records[start:end])
	return core.ListPage{Items: items, HasNext: end < len(s.records)}, nil
}

func (s *Store) Get(_ context.Context, id string) (core.StudentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return core.StudentRecord{}, notFound("get")
	}
	return s.records[i], nil
}

func (s *Store) Create(_ context.Context, f core.StudentFields) (core.StudentRecord, error) {
	f = f.Normalize()
	if err := core.CheckFields("create", s.validator, f); err != nil {
		return core.StudentRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codeTaken(f.StudentCode, "") {
		return core.StudentRecord{}, core.DuplicateCodeError("create")
	}
	r := core.StudentRecord{ID: uuid.NewString(), StudentFields: f}
	s.byID[r.ID] = len(s.records)
	s.records = append(s.records, r)
	return r, nil
}

func (s *Store) Update(_ context.Context, id string, f core.StudentFields) (core.StudentRecord, error) {
	f = f.Normalize()
	if err := core.CheckFields("update", s.validator, f); err != nil {
		return core.StudentRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return core.StudentRecord{}, notFound("update")
	}
	if s.codeTaken(f.StudentCode, id) {
		return core.StudentRecord{}, core.DuplicateCodeError("update")
	}
	s.records[i].StudentFields = f
	return s.records[i], nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return notFound("delete")
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	s.reindex()
	return nil
}

func (s *Store) BulkDelete(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.records))
	s.records = nil
	s.byID = make(map[string]int)
	return n, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) codeTaken(code, exceptID string) bool {
	for _, r := range s.records {
		if r.StudentCode == code && r.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *Store) reindex() {
	s.byID = make(map[string]int, len(s.records))
	for i, r := range s.records {
		s.byID[r.ID] = i
	}
}

func notFound(op string) error {
	return &core.RemoteError{Op: op, StatusCode: 404, Err: core.ErrNotFound}
}
