package core

import (
	"sync"
	"testing"
)

func TestStore_LoadDerivesEveryRecord(t *testing.T) {
	s := NewStore()
	if s.Len() != 0 || s.Snapshot().Loaded() {
		t.Fatal("new store should be empty and unloaded")
	}

	in := []StudentRecord{
		{ID: "a", StudentFields: StudentFields{StudentCode: "SV000001", MathScore: Float(9), EnglishScore: Float(8)}},
		{ID: "b", StudentFields: StudentFields{StudentCode: "SV000002"}, AverageScore: Float(10), Grade: GradeA},
	}
	snap := s.Load(in)

	if *snap.Records[0].AverageScore != 8.5 || snap.Records[0].Grade != GradeA {
		t.Errorf("record a derived = %v %q", *snap.Records[0].AverageScore, snap.Records[0].Grade)
	}
	// Stale derived fields from the source are discarded.
	if snap.Records[1].AverageScore != nil || snap.Records[1].Grade != GradeNone {
		t.Errorf("record b derived = %v %q, want nil/none", snap.Records[1].AverageScore, snap.Records[1].Grade)
	}
	if in[0].AverageScore != nil {
		t.Error("Load mutated its input")
	}
}

func TestStore_LoadReplacesWholesale(t *testing.T) {
	s := NewStore()
	first := s.Load([]StudentRecord{student("SV000001", 1, 1, 1), student("SV000002", 2, 2, 2)})
	second := s.Load([]StudentRecord{student("SV000003", 3, 3, 3)})

	if second.Version <= first.Version {
		t.Errorf("version did not advance: %d -> %d", first.Version, second.Version)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
	// Old snapshot is untouched.
	if len(first.Records) != 2 {
		t.Errorf("old snapshot changed: %d records", len(first.Records))
	}
	if _, ok := s.Snapshot().ByCode("SV000001"); ok {
		t.Error("old record still indexed")
	}
}

func TestSnapshot_Lookups(t *testing.T) {
	s := NewStore()
	s.Load([]StudentRecord{student("SV000001", 1, 1, 1), student("SV000002", 2, 2, 2)})
	snap := s.Snapshot()

	if r, ok := snap.ByID("id-SV000002"); !ok || r.StudentCode != "SV000002" {
		t.Errorf("ByID = %+v, %v", r, ok)
	}
	if r, ok := snap.ByCode("SV000001"); !ok || r.ID != "id-SV000001" {
		t.Errorf("ByCode = %+v, %v", r, ok)
	}
	if _, ok := snap.ByID("missing"); ok {
		t.Error("ByID found a missing id")
	}
}

func TestStore_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	s := NewStore()
	small := []StudentRecord{student("SV000001", 1, 1, 1)}
	large := []StudentRecord{student("SV000001", 1, 1, 1), student("SV000002", 2, 2, 2), student("SV000003", 3, 3, 3)}
	s.Load(small)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 500 {
			if i%2 == 0 {
				s.Load(large)
			} else {
				s.Load(small)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for range 500 {
			n := len(s.All())
			if n != 1 && n != 3 {
				t.Errorf("observed partial snapshot of %d records", n)
				return
			}
		}
	}()
	wg.Wait()
}
