package core

// store.go holds the in-memory working set.
//
// The working set is replaced wholesale on every load. Readers take a
// snapshot pointer and never observe a half-written collection: a pipeline
// pass sees either the old snapshot or the new one.

import (
	"sync/atomic"
	"time"
)

// Snapshot is an immutable view of the working set at one load.
type Snapshot struct {
	Records  []StudentRecord
	LoadedAt time.Time
	Version  uint64

	byID   map[string]int
	byCode map[string]int
}

// Store owns the canonical collection and the derived fields of every record.
// The zero value is an empty store ready to use.
type Store struct {
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Load replaces the entire working set and recomputes AverageScore and Grade
// for every record. The input slice is not retained.
func (s *Store) Load(records []StudentRecord) *Snapshot {
	derived := make([]StudentRecord, len(records))
	byID := make(map[string]int, len(records))
	byCode := make(map[string]int, len(records))

	for i, r := range records {
		derived[i] = Derive(r)
		if r.ID != "" {
			byID[r.ID] = i
		}
		if _, dup := byCode[r.StudentCode]; !dup && r.StudentCode != "" {
			byCode[r.StudentCode] = i
		}
	}

	snap := &Snapshot{
		Records:  derived,
		LoadedAt: time.Now(),
		Version:  s.version.Add(1),
		byID:     byID,
		byCode:   byCode,
	}
	s.current.Store(snap)
	return snap
}

// Snapshot returns the current working set. It never returns nil.
func (s *Store) Snapshot() *Snapshot {
	if snap := s.current.Load(); snap != nil {
		return snap
	}
	return &Snapshot{}
}

// All returns the current records. Callers must treat the slice as read-only.
func (s *Store) All() []StudentRecord {
	return s.Snapshot().Records
}

// Len returns the number of records in the working set.
func (s *Store) Len() int {
	return len(s.Snapshot().Records)
}

// ByID looks up a record by its remote id.
func (s *Snapshot) ByID(id string) (StudentRecord, bool) {
	i, ok := s.byID[id]
	if !ok {
		return StudentRecord{}, false
	}
	return s.Records[i], true
}

// ByCode looks up a record by student code. When the working set holds
// duplicate codes the first one wins.
func (s *Snapshot) ByCode(code string) (StudentRecord, bool) {
	i, ok := s.byCode[code]
	if !ok {
		return StudentRecord{}, false
	}
	return s.Records[i], true
}

// Loaded reports whether Load has been called at least once.
func (s *Snapshot) Loaded() bool {
	return s.Version > 0
}
