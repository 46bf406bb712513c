package core

// reconcile.go merges parsed import rows into the remote store.
//
// Rows are written one at a time, in file order. A failed create or update
// becomes a RowError for that line and processing moves on; only a failure
// to list the existing records aborts the batch. The working set is never
// touched here: the caller reloads it once the batch is done.

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"
)

// DefaultYieldEvery is how many rows are written between yields.
const DefaultYieldEvery = 50

// ImportOptions controls reconciliation.
type ImportOptions struct {
	// UpdateExisting updates records whose student code already exists.
	// When false those rows are counted as skipped.
	UpdateExisting bool `json:"updateExisting"`
	// SkipInvalid imports the valid rows when some rows fail validation.
	// When false any invalid row blocks the whole import.
	SkipInvalid bool `json:"skipInvalid"`
	// YieldEvery and YieldPause let other work run during long batches.
	YieldEvery int           `json:"-"`
	YieldPause time.Duration `json:"-"`
}

// ImportResult is the outcome of one reconciliation.
type ImportResult struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Skipped int        `json:"skipped"`
	Errors  []RowError `json:"errors"`
}

// Processed returns the number of rows that reached a decision.
func (r ImportResult) Processed() int {
	return r.Created + r.Updated + r.Skipped + len(r.Errors)
}

// Action is what reconciliation will do, or did, with a row.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
)

// PlanAction decides the action for a row given whether its code exists.
func PlanAction(exists bool, opts ImportOptions) Action {
	switch {
	case !exists:
		return ActionCreate
	case opts.UpdateExisting:
		return ActionUpdate
	default:
		return ActionSkip
	}
}

// Reconciler writes import rows through a Persistence.
type Reconciler struct {
	store Persistence
}

// NewReconciler returns a Reconciler writing to store.
func NewReconciler(store Persistence) *Reconciler {
	return &Reconciler{store: store}
}

// Run reconciles rows against a fresh listing of the store. Rows must
// already be valid. A row whose code appeared earlier in the same batch is
// matched against the record that earlier row created, so a file never
// creates the same code twice.
//
// ctx bounds the initial listing only. Once writing starts the batch runs
// to completion.
func (rc *Reconciler) Run(ctx context.Context, rows []ImportRow, opts ImportOptions) (ImportResult, error) {
	result := ImportResult{Errors: []RowError{}}

	existing, err := LoadAll(ctx, rc.store)
	if err != nil {
		return result, &RemoteError{Op: "list", Err: err}
	}

	index := make(map[string]string, len(existing))
	for _, r := range existing {
		if _, dup := index[r.StudentCode]; !dup {
			index[r.StudentCode] = r.ID
		}
	}

	yieldEvery := opts.YieldEvery
	if yieldEvery <= 0 {
		yieldEvery = DefaultYieldEvery
	}

	writeCtx := context.WithoutCancel(ctx)
	for i, row := range rows {
		if i > 0 && i%yieldEvery == 0 {
			yield(opts.YieldPause)
		}

		fields := row.Fields.Normalize()
		id, exists := index[fields.StudentCode]

		switch PlanAction(exists, opts) {
		case ActionSkip:
			result.Skipped++

		case ActionUpdate:
			if _, err := rc.store.Update(writeCtx, id, fields); err != nil {
				result.Errors = append(result.Errors, rowFailure(row.Line, err))
				continue
			}
			result.Updated++

		case ActionCreate:
			created, err := rc.store.Create(writeCtx, fields)
			if err != nil {
				result.Errors = append(result.Errors, rowFailure(row.Line, err))
				continue
			}
			index[fields.StudentCode] = created.ID
			result.Created++
		}
	}

	slog.Debug("import reconciled",
		"rows", len(rows),
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)
	return result, nil
}

func yield(pause time.Duration) {
	if pause > 0 {
		time.Sleep(pause)
		return
	}
	runtime.Gosched()
}

// rowFailure converts a store error into a row error, keeping field detail.
func rowFailure(line int, err error) RowError {
	var remote *RemoteError
	if errors.As(err, &remote) && len(remote.Fields) > 0 {
		return RowError{Line: line, Message: remote.FieldErrors().Error()}
	}
	return RowError{Line: line, Message: err.Error()}
}
