package core

import (
	"math"
	"reflect"
	"testing"
)

func testAggregator() *Aggregator {
	return &Aggregator{Now: fixedClock, TopN: DefaultTopN}
}

func withBirth(r StudentRecord, date string) StudentRecord {
	r.BirthDate = date
	return r
}

func withHometown(r StudentRecord, h string) StudentRecord {
	r.Hometown = h
	return r
}

// ============================================================================
// Summary over subject averages 9, 7, 5
// ============================================================================

func TestSummarize_SubjectAverages975(t *testing.T) {
	recs := []StudentRecord{
		student("S1", 9, -1, -1),
		student("S2", -1, 7, -1),
		student("S3", -1, -1, 5),
	}
	s := testAggregator().Summarize(recs)

	wantSubjects := map[Field]float64{FieldMathScore: 9, FieldLiteratureScore: 7, FieldEnglishScore: 5}
	for _, sa := range s.SubjectAverages {
		if sa.Average == nil || *sa.Average != wantSubjects[sa.Subject] {
			t.Errorf("%s average = %v, want %v", sa.Subject, sa.Average, wantSubjects[sa.Subject])
		}
		if sa.Count != 1 {
			t.Errorf("%s count = %d, want 1", sa.Subject, sa.Count)
		}
	}

	wantGrades := []GradeCount{{GradeA, 1}, {GradeB, 1}, {GradeC, 0}, {GradeD, 1}, {GradeF, 0}}
	if !reflect.DeepEqual(s.GradeDistribution, wantGrades) {
		t.Errorf("GradeDistribution = %v, want %v", s.GradeDistribution, wantGrades)
	}

	if !HasInsight(s.Insights, InsightSubjectGap) {
		t.Errorf("expected subject-gap insight, got %v", s.Insights)
	}
}

func TestSubjectAverages_NoneIsNil(t *testing.T) {
	recs := []StudentRecord{student("S1", 8, -1, -1), student("S2", 6, -1, -1)}
	got := SubjectAverages(recs)
	if got[0].Average == nil || *got[0].Average != 7 {
		t.Errorf("math = %v, want 7", got[0].Average)
	}
	if got[1].Average != nil || got[2].Average != nil {
		t.Errorf("subjects without scores must be nil, got %v %v", got[1].Average, got[2].Average)
	}
}

func TestGradeDistribution_ExcludesUngraded(t *testing.T) {
	recs := []StudentRecord{
		student("S1", -1, -1, -1),
		student("S2", 8.5, -1, -1),
		student("S3", 3.999, -1, -1),
	}
	var total int
	for _, g := range GradeDistribution(recs) {
		total += g.Count
	}
	if total != 2 {
		t.Errorf("bucket total = %d, want 2", total)
	}
}

// ============================================================================
// Overview Tests
// ============================================================================

func TestOverview(t *testing.T) {
	tests := []struct {
		name        string
		recs        []StudentRecord
		wantWith    int
		wantAge     int
		wantSamples int
	}{
		{
			name:        "empty set has explicit zero age",
			recs:        nil,
			wantAge:     0,
			wantSamples: 0,
		},
		{
			name: "age is current year minus birth year",
			recs: []StudentRecord{
				withBirth(student("S1", 8, -1, -1), "2004-12-31"), // 22
				withBirth(student("S2", -1, -1, -1), "2006-01-01"), // 20
				student("S3", 5, -1, -1),                            // no birth date
			},
			wantWith:    2,
			wantAge:     21,
			wantSamples: 2,
		},
		{
			name: "mean rounds to whole years",
			recs: []StudentRecord{
				withBirth(student("S1", 8, -1, -1), "2004-01-01"), // 22
				withBirth(student("S2", 8, -1, -1), "2005-01-01"), // 21
			},
			wantWith:    2,
			wantAge:     22,
			wantSamples: 2,
		},
		{
			name: "no birth dates",
			recs: []StudentRecord{
				student("S1", -1, -1, -1),
			},
			wantAge:     0,
			wantSamples: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := testAggregator().Summarize(tt.recs).Overview
			if o.Total != len(tt.recs) {
				t.Errorf("Total = %d, want %d", o.Total, len(tt.recs))
			}
			if o.WithScores != tt.wantWith {
				t.Errorf("WithScores = %d, want %d", o.WithScores, tt.wantWith)
			}
			if o.AverageAge != tt.wantAge || o.AgeSampleSize != tt.wantSamples {
				t.Errorf("age = %d over %d, want %d over %d", o.AverageAge, o.AgeSampleSize, tt.wantAge, tt.wantSamples)
			}
		})
	}
}

// ============================================================================
// Histogram Tests
// ============================================================================

func TestScoreRangeHistogram(t *testing.T) {
	recs := []StudentRecord{
		student("S0", 0, -1, -1),
		student("S1", 4.99, -1, -1),
		student("S2", 5, -1, -1),
		student("S3", 6.49, -1, -1),
		student("S4", 6.5, -1, -1),
		student("S5", 7.99, -1, -1),
		student("S6", 8, -1, -1),
		student("S7", 10, -1, -1),
		student("S8", -1, -1, -1), // excluded
	}
	got := ScoreRangeHistogram(recs)
	want := []int{2, 2, 2, 2}
	for i, r := range got {
		if r.Count != want[i] {
			t.Errorf("bucket %s = %d, want %d", r.Label, r.Count, want[i])
		}
	}
}

func TestHometownDistribution(t *testing.T) {
	recs := []StudentRecord{
		withHometown(student("S1", 8, -1, -1), "Huế"),
		withHometown(student("S2", 8, -1, -1), " Hà Nội "),
		withHometown(student("S3", 8, -1, -1), "Hà Nội"),
		withHometown(student("S4", 8, -1, -1), "   "),
		withHometown(student("S5", 8, -1, -1), "Đà Nẵng"),
		student("S6", 8, -1, -1),
	}
	got := HometownDistribution(recs)
	want := []HometownCount{{"Hà Nội", 2}, {"Huế", 1}, {"Đà Nẵng", 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("HometownDistribution = %v, want %v", got, want)
	}
}

func TestScoresByHometown(t *testing.T) {
	recs := []StudentRecord{
		withHometown(student("S1", 8, -1, -1), "Huế"),
		withHometown(student("S2", 6, -1, -1), "Huế"),
		withHometown(student("S3", -1, -1, -1), "Huế"), // no average
		withHometown(student("S4", 9, -1, -1), ""),     // no hometown
		withHometown(student("S5", 5, -1, -1), "Vinh"),
	}
	got := ScoresByHometown(recs)
	want := []HometownScore{{"Huế", 7, 2}, {"Vinh", 5, 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ScoresByHometown = %v, want %v", got, want)
	}
}

// ============================================================================
// TopPerformers Tests
// ============================================================================

func TestTopPerformers(t *testing.T) {
	recs := []StudentRecord{
		student("P1", 7, -1, -1),
		student("P2", 9, -1, -1),
		student("P3", -1, -1, -1),
		student("P4", 9, -1, -1),
		student("P5", 8, -1, -1),
		student("P6", 6, -1, -1),
		student("P7", 9, -1, -1),
		student("P8", 5, -1, -1),
	}
	got := codes(TopPerformers(recs, 5))
	want := []string{"P2", "P4", "P7", "P5", "P1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TopPerformers = %v, want %v", got, want)
	}

	if got := TopPerformers(recs[:2], 5); len(got) != 2 {
		t.Errorf("short set returned %d, want 2", len(got))
	}
}

// ============================================================================
// Insight threshold Tests
// ============================================================================

func TestInsights_Thresholds(t *testing.T) {
	subjects := func(vals ...float64) []SubjectAverage {
		out := make([]SubjectAverage, len(vals))
		for i, v := range vals {
			out[i] = SubjectAverage{Subject: SubjectFields[i], Count: 1}
			if !math.IsNaN(v) {
				out[i].Average = Float(v)
			}
		}
		return out
	}
	grades := func(a int) []GradeCount {
		return []GradeCount{{GradeA, a}, {GradeB, 0}, {GradeC, 0}, {GradeD, 0}, {GradeF, 0}}
	}
	nan := math.NaN()

	tests := []struct {
		name     string
		overview Overview
		grades   []GradeCount
		subjects []SubjectAverage
		want     []InsightKind
	}{
		{
			name:     "A rate exactly 20% is not high quality",
			overview: Overview{Total: 10, WithScores: 10},
			grades:   grades(2),
			subjects: subjects(7, 7, 7),
			want:     nil,
		},
		{
			name:     "A rate above 20%",
			overview: Overview{Total: 10, WithScores: 10},
			grades:   grades(3),
			subjects: subjects(7, 7, 7),
			want:     []InsightKind{InsightHighQuality},
		},
		{
			name:     "A rate exactly 10% needs no attention",
			overview: Overview{Total: 10, WithScores: 10},
			grades:   grades(1),
			subjects: subjects(7, 7, 7),
			want:     nil,
		},
		{
			name:     "A rate below 10%",
			overview: Overview{Total: 20, WithScores: 20},
			grades:   grades(1),
			subjects: subjects(7, 7, 7),
			want:     []InsightKind{InsightNeedsAttention},
		},
		{
			name:     "gap exactly 1.0 is not flagged",
			overview: Overview{Total: 10, WithScores: 10},
			grades:   grades(2),
			subjects: subjects(8, 7.5, 7),
			want:     nil,
		},
		{
			name:     "gap above 1.0",
			overview: Overview{Total: 10, WithScores: 10},
			grades:   grades(2),
			subjects: subjects(8.01, 7.5, 7),
			want:     []InsightKind{InsightSubjectGap},
		},
		{
			name:     "gap ignores subjects without data",
			overview: Overview{Total: 10, WithScores: 10},
			grades:   grades(2),
			subjects: subjects(9, nan, nan),
			want:     nil,
		},
		{
			name:     "exactly 80% scored is complete",
			overview: Overview{Total: 10, WithScores: 8},
			grades:   grades(2),
			subjects: subjects(7, 7, 7),
			want:     nil,
		},
		{
			name:     "below 80% scored",
			overview: Overview{Total: 10, WithScores: 7},
			grades:   grades(2),
			subjects: subjects(7, 7, 7),
			want:     []InsightKind{InsightIncompleteData},
		},
		{
			name:     "empty set has no insights",
			overview: Overview{},
			grades:   grades(0),
			subjects: subjects(nan, nan, nan),
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Insights(tt.overview, tt.grades, tt.subjects)
			var kinds []InsightKind
			for _, in := range got {
				kinds = append(kinds, in.Kind)
			}
			if !reflect.DeepEqual(kinds, tt.want) {
				t.Errorf("Insights = %v, want %v", kinds, tt.want)
			}
		})
	}
}
