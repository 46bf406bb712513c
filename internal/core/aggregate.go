package core

// aggregate.go computes the analytics view.
//
// Analytics always runs over the full unfiltered working set. Every average
// that has no samples is reported as nil, never as NaN or a silent zero.

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Insight thresholds.
const (
	HighQualityRate    = 0.20 // A-grade rate above this is flagged high-quality
	NeedsAttentionRate = 0.10 // A-grade rate below this needs attention
	SubjectGapPoints   = 1.0  // best minus worst subject average above this
	CompleteDataRate   = 0.80 // share of scored records below this is incomplete
	DefaultTopN        = 5
)

// InsightKind identifies a presentation hint.
type InsightKind string

const (
	InsightHighQuality    InsightKind = "high-quality"
	InsightNeedsAttention InsightKind = "needs-attention"
	InsightSubjectGap     InsightKind = "subject-gap"
	InsightIncompleteData InsightKind = "incomplete-data"
)

// Insight is a derived flag with a human-readable message.
type Insight struct {
	Kind    InsightKind `json:"kind"`
	Message string      `json:"message"`
}

// Overview holds the headline counts.
type Overview struct {
	Total      int `json:"total"`
	WithScores int `json:"withScores"`
	// AverageAge is 0 when AgeSampleSize is 0.
	AverageAge    int `json:"averageAge"`
	AgeSampleSize int `json:"ageSampleSize"`
}

// GradeCount is one bucket of the grade histogram.
type GradeCount struct {
	Grade Grade `json:"grade"`
	Count int   `json:"count"`
}

// SubjectAverage is the mean of one subject over the records that have it.
type SubjectAverage struct {
	Subject Field    `json:"subject"`
	Average *float64 `json:"average"`
	Count   int      `json:"count"`
}

// ScoreRange is one bucket of the average-score histogram.
// Max is exclusive except for the last bucket.
type ScoreRange struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// HometownCount is the number of records per hometown.
type HometownCount struct {
	Hometown string `json:"hometown"`
	Count    int    `json:"count"`
}

// HometownScore is the mean average score per hometown.
type HometownScore struct {
	Hometown string  `json:"hometown"`
	Average  float64 `json:"average"`
	Count    int     `json:"count"`
}

// Summary is the complete analytics view.
type Summary struct {
	Overview             Overview         `json:"overview"`
	GradeDistribution    []GradeCount     `json:"gradeDistribution"`
	SubjectAverages      []SubjectAverage `json:"averageScoresBySubject"`
	ScoreRanges          []ScoreRange     `json:"scoreRangeHistogram"`
	HometownDistribution []HometownCount  `json:"hometownDistribution"`
	ScoresByHometown     []HometownScore  `json:"scoresByHometown"`
	TopPerformers        []StudentRecord  `json:"topPerformers"`
	Insights             []Insight        `json:"insights"`
}

// scoreBands are the histogram buckets over averageScore.
var scoreBands = []ScoreRange{
	{Label: "0-5", Min: 0, Max: 5},
	{Label: "5-6.5", Min: 5, Max: 6.5},
	{Label: "6.5-8", Min: 6.5, Max: 8},
	{Label: "8-10", Min: 8, Max: 10},
}

// Aggregator computes summaries. Now supplies the current year for ages.
type Aggregator struct {
	Now  func() time.Time
	TopN int
}

// NewAggregator returns an Aggregator using the wall clock and DefaultTopN.
func NewAggregator() *Aggregator {
	return &Aggregator{Now: time.Now, TopN: DefaultTopN}
}

// Summarize computes the analytics view over records.
func (a *Aggregator) Summarize(records []StudentRecord) Summary {
	subjects := SubjectAverages(records)
	grades := GradeDistribution(records)

	s := Summary{
		Overview:             a.overview(records),
		GradeDistribution:    grades,
		SubjectAverages:      subjects,
		ScoreRanges:          ScoreRangeHistogram(records),
		HometownDistribution: HometownDistribution(records),
		ScoresByHometown:     ScoresByHometown(records),
		TopPerformers:        TopPerformers(records, a.topN()),
	}
	s.Insights = Insights(s.Overview, grades, subjects)
	return s
}

func (a *Aggregator) topN() int {
	if a.TopN <= 0 {
		return DefaultTopN
	}
	return a.TopN
}

func (a *Aggregator) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

// overview counts records and computes the mean age as currentYear minus
// birth year. Records without a parseable birth date are left out.
func (a *Aggregator) overview(records []StudentRecord) Overview {
	o := Overview{Total: len(records)}
	year := a.now().Year()

	var ageSum int
	for _, r := range records {
		if r.HasAnyScore() {
			o.WithScores++
		}
		if r.BirthDate == "" {
			continue
		}
		d, err := ParseDate(r.BirthDate)
		if err != nil {
			continue
		}
		ageSum += year - d.Year()
		o.AgeSampleSize++
	}
	if o.AgeSampleSize > 0 {
		o.AverageAge = int(math.Round(float64(ageSum) / float64(o.AgeSampleSize)))
	}
	return o
}

// GradeDistribution counts records per grade, A through F. Records without
// a grade are not counted in any bucket.
func GradeDistribution(records []StudentRecord) []GradeCount {
	counts := make(map[Grade]int, len(Grades))
	for _, r := range records {
		if r.Grade.Valid() {
			counts[r.Grade]++
		}
	}
	out := make([]GradeCount, len(Grades))
	for i, g := range Grades {
		out[i] = GradeCount{Grade: g, Count: counts[g]}
	}
	return out
}

// SubjectAverages returns the mean of each subject over the records that
// have a score for it.
func SubjectAverages(records []StudentRecord) []SubjectAverage {
	out := make([]SubjectAverage, len(SubjectFields))
	for i, subject := range SubjectFields {
		var sum float64
		var n int
		for _, r := range records {
			if s := r.Score(subject); s != nil {
				sum += *s
				n++
			}
		}
		out[i] = SubjectAverage{Subject: subject, Count: n}
		if n > 0 {
			avg := sum / float64(n)
			out[i].Average = &avg
		}
	}
	return out
}

// ScoreRangeHistogram buckets averages into [0,5), [5,6.5), [6.5,8), [8,10].
func ScoreRangeHistogram(records []StudentRecord) []ScoreRange {
	out := make([]ScoreRange, len(scoreBands))
	copy(out, scoreBands)
	last := len(out) - 1

	for _, r := range records {
		if r.AverageScore == nil {
			continue
		}
		avg := *r.AverageScore
		for i := range out {
			inBand := avg >= out[i].Min && avg < out[i].Max
			if i == last {
				inBand = avg >= out[i].Min && avg <= out[i].Max
			}
			if inBand {
				out[i].Count++
				break
			}
		}
	}
	return out
}

// HometownDistribution counts records per trimmed, non-empty hometown,
// most common first. Ties keep first-seen order.
func HometownDistribution(records []StudentRecord) []HometownCount {
	index := make(map[string]int)
	var out []HometownCount
	for _, r := range records {
		h := strings.TrimSpace(r.Hometown)
		if h == "" {
			continue
		}
		i, ok := index[h]
		if !ok {
			i = len(out)
			index[h] = i
			out = append(out, HometownCount{Hometown: h})
		}
		out[i].Count++
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if out == nil {
		out = []HometownCount{}
	}
	return out
}

// ScoresByHometown returns the mean average score per hometown over records
// that have both a hometown and an average, in first-seen order.
func ScoresByHometown(records []StudentRecord) []HometownScore {
	type acc struct {
		sum float64
		n   int
	}
	index := make(map[string]int)
	var names []string
	var accs []acc

	for _, r := range records {
		h := strings.TrimSpace(r.Hometown)
		if h == "" || r.AverageScore == nil {
			continue
		}
		i, ok := index[h]
		if !ok {
			i = len(names)
			index[h] = i
			names = append(names, h)
			accs = append(accs, acc{})
		}
		accs[i].sum += *r.AverageScore
		accs[i].n++
	}

	out := make([]HometownScore, len(names))
	for i, h := range names {
		out[i] = HometownScore{Hometown: h, Average: accs[i].sum / float64(accs[i].n), Count: accs[i].n}
	}
	return out
}

// TopPerformers returns up to n records with a defined average, highest
// first. Equal averages keep their working-set order.
func TopPerformers(records []StudentRecord, n int) []StudentRecord {
	scored := make([]StudentRecord, 0, len(records))
	for _, r := range records {
		if r.AverageScore != nil {
			scored = append(scored, r)
		}
	}
	ranked := Sort(scored, SortSpec{Key: SortAverageScore, Direction: Desc})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Insights derives the presentation flags. The A-grade rate is taken over
// all records, including those without a grade.
func Insights(o Overview, grades []GradeCount, subjects []SubjectAverage) []Insight {
	out := []Insight{}
	if o.Total == 0 {
		return out
	}

	var aCount int
	for _, g := range grades {
		if g.Grade == GradeA {
			aCount = g.Count
		}
	}
	aRate := float64(aCount) / float64(o.Total)
	switch {
	case aRate > HighQualityRate:
		out = append(out, Insight{
			Kind:    InsightHighQuality,
			Message: "More than 20% of students earn an A",
		})
	case aRate < NeedsAttentionRate:
		out = append(out, Insight{
			Kind:    InsightNeedsAttention,
			Message: "Fewer than 10% of students earn an A",
		})
	}

	var best, worst *SubjectAverage
	for i := range subjects {
		s := &subjects[i]
		if s.Average == nil {
			continue
		}
		if best == nil || *s.Average > *best.Average {
			best = s
		}
		if worst == nil || *s.Average < *worst.Average {
			worst = s
		}
	}
	if best != nil && worst != nil && best != worst && *best.Average-*worst.Average > SubjectGapPoints {
		out = append(out, Insight{
			Kind:    InsightSubjectGap,
			Message: "Gap of more than 1 point between " + string(best.Subject) + " and " + string(worst.Subject),
		})
	}

	if float64(o.WithScores)/float64(o.Total) < CompleteDataRate {
		out = append(out, Insight{
			Kind:    InsightIncompleteData,
			Message: "Fewer than 80% of students have at least one score",
		})
	}
	return out
}

// HasInsight reports whether kind is among insights.
func HasInsight(insights []Insight, kind InsightKind) bool {
	for _, in := range insights {
		if in.Kind == kind {
			return true
		}
	}
	return false
}
