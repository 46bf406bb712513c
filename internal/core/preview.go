package core

import (
	"time"
)

// PreviewSummary contains the summary counts for an import preview.
type PreviewSummary struct {
	TotalRows       int `json:"totalRows"`
	NewRows         int `json:"newRows"`
	UpdateRows      int `json:"updateRows"`
	SkipRows        int `json:"skipRows"`
	ErrorRows       int `json:"errorRows"`
	DuplicateInFile int `json:"duplicateInFile"`
	// BlankRows counts blank and instructional rows the parser ignored.
	BlankRows int `json:"blankRows"`
}

// RowPreview is one valid row and what importing it would do.
type RowPreview struct {
	Line   int           `json:"line"`
	Action Action        `json:"action"`
	Fields StudentFields `json:"fields"`
	// Average uses the import policy: missing scores count as zero.
	Average float64 `json:"average"`
	Grade   Grade   `json:"grade"`
	// Changed lists the fields an update would modify.
	Changed []Field `json:"changed,omitempty"`
}

// DuplicatePreview lists the lines that share a student code.
type DuplicatePreview struct {
	StudentCode string `json:"studentCode"`
	Lines       []int  `json:"lines"`
}

// ImportPreview is the read-only analysis of an import document.
type ImportPreview struct {
	Summary          PreviewSummary     `json:"summary"`
	Rows             []RowPreview       `json:"rows"`
	Errors           []RowError         `json:"errors"`
	Duplicates       []DuplicatePreview `json:"duplicates"`
	ProcessingTimeMs int64              `json:"processingTimeMs"`
}

// Sample limits.
const (
	maxPreviewRows      = 200
	maxDuplicateSamples = 20
	maxPreviewRowErrors = 200
)

// BuildPreview analyses parsed rows against the working set without any
// remote call. Later rows with a code seen earlier in the file are planned
// against that earlier row, matching what Reconciler.Run will do.
func BuildPreview(doc *Document, invalid []RowError, snap *Snapshot, opts ImportOptions) ImportPreview {
	start := time.Now()
	invalidLines := make(map[int]bool, len(invalid))
	for _, e := range invalid {
		invalidLines[e.Line] = true
	}

	resp := ImportPreview{
		Rows:       []RowPreview{},
		Errors:     mergeRowErrors(doc.Errors, invalid),
		Duplicates: []DuplicatePreview{},
	}
	resp.Summary.BlankRows = doc.Skipped
	resp.Summary.ErrorRows = len(resp.Errors)
	resp.Summary.TotalRows = len(doc.Rows) + len(doc.Errors)

	seen := make(map[string][]int)
	var order []string

	for _, row := range doc.Rows {
		if invalidLines[row.Line] {
			continue
		}
		f := row.Fields.Normalize()

		lines, inFile := seen[f.StudentCode]
		if !inFile {
			order = append(order, f.StudentCode)
		}
		seen[f.StudentCode] = append(lines, row.Line)

		current, inStore := snap.ByCode(f.StudentCode)
		action := PlanAction(inStore || inFile, opts)

		switch action {
		case ActionCreate:
			resp.Summary.NewRows++
		case ActionUpdate:
			resp.Summary.UpdateRows++
		case ActionSkip:
			resp.Summary.SkipRows++
		}

		if len(resp.Rows) >= maxPreviewRows {
			continue
		}
		avg := ImportPreviewAverage(f)
		rp := RowPreview{
			Line:    row.Line,
			Action:  action,
			Fields:  f,
			Average: avg,
			Grade:   GradeFor(&avg),
		}
		if action == ActionUpdate && inStore {
			rp.Changed = changedFields(current.StudentFields, f)
		}
		resp.Rows = append(resp.Rows, rp)
	}

	for _, code := range order {
		if lines := seen[code]; len(lines) > 1 {
			resp.Summary.DuplicateInFile += len(lines) - 1
			if len(resp.Duplicates) < maxDuplicateSamples {
				resp.Duplicates = append(resp.Duplicates, DuplicatePreview{StudentCode: code, Lines: lines})
			}
		}
	}

	if len(resp.Errors) > maxPreviewRowErrors {
		resp.Errors = resp.Errors[:maxPreviewRowErrors]
	}
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	return resp
}

// changedFields lists the fields whose values differ between a and b.
func changedFields(a, b StudentFields) []Field {
	ca, cb := a.Normalize().Candidate(), b.Normalize().Candidate()
	var changed []Field
	for _, f := range Fields {
		if ca[f] != cb[f] {
			changed = append(changed, f)
		}
	}
	return changed
}
