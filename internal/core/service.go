package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/JonMunkholm/gradebook/internal/logging"
)

// ReloadTimeout bounds one full listing of the remote store.
var ReloadTimeout = 2 * time.Minute

// SnapshotCache stores a copy of the working set so a restarted service can
// serve reads before its first full listing completes.
type SnapshotCache interface {
	Get(ctx context.Context) ([]StudentRecord, bool, error)
	Set(ctx context.Context, records []StudentRecord) error
	Invalidate(ctx context.Context) error
}

// Recorder receives operational measurements.
type Recorder interface {
	ReloadDone(d time.Duration, records int, err error)
	MutationDone(op string, err error)
	ImportDone(r ImportReport, err error)
}

// ServiceConfig holds optional collaborators. Zero values get defaults.
type ServiceConfig struct {
	Validator   *Validator
	Aggregator  *Aggregator
	Cache       SnapshotCache
	Recorder    Recorder
	Limiter     *ImportLimiter
	HistorySize int
	// ImportDefaults fills YieldEvery and YieldPause when a request leaves
	// them unset.
	ImportDefaults ImportOptions
}

// Service ties the working set to the remote store. Reads come from the
// in-memory snapshot; every write goes to the store and is followed by a
// full reload.
type Service struct {
	persistence Persistence
	store       *Store
	ctrl        *Controller
	validator   *Validator
	codec       *Codec
	reconciler  *Reconciler
	cache       SnapshotCache
	rec         Recorder
	limiter     *ImportLimiter
	history     *ImportHistory
	importDefs  ImportOptions

	reloads singleflight.Group

	// Every listing takes a sequence number when it starts. A listing that
	// finishes after a newer one has been applied is discarded.
	listSeq    atomic.Uint64
	loadMu     sync.Mutex
	appliedSeq uint64
}

// NewService creates a Service over p.
func NewService(p Persistence, cfg ServiceConfig) *Service {
	if cfg.Validator == nil {
		cfg.Validator = NewValidator()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewImportLimiter(DefaultMaxConcurrentImports, DefaultMaxWaitTime)
	}

	store := NewStore()
	return &Service{
		persistence: p,
		store:       store,
		ctrl:        NewController(store, cfg.Aggregator),
		validator:   cfg.Validator,
		codec:       NewCodec(cfg.Validator),
		reconciler:  NewReconciler(p),
		cache:       cfg.Cache,
		rec:         cfg.Recorder,
		limiter:     cfg.Limiter,
		history:     NewImportHistory(cfg.HistorySize),
		importDefs:  cfg.ImportDefaults,
	}
}

// Store exposes the working set.
func (s *Service) Store() *Store {
	return s.store
}

// Limiter exposes the import limiter for shutdown draining.
func (s *Service) Limiter() *ImportLimiter {
	return s.limiter
}

// ----------------------------------------------------------------------------
// Loading
// ----------------------------------------------------------------------------

// Reload replaces the working set with a full listing of the store.
// Concurrent calls share one listing. Writes do not join it; see refresh.
func (s *Service) Reload(ctx context.Context) (int, error) {
	v, err, _ := s.reloads.Do("reload", func() (any, error) {
		return s.reload(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (s *Service) reload(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, ReloadTimeout)
	defer cancel()

	seq := s.listSeq.Add(1)
	start := time.Now()
	records, err := LoadAll(ctx, s.persistence)
	s.rec.ReloadDone(time.Since(start), len(records), err)
	if err != nil {
		return 0, fmt.Errorf("reload working set: %w", err)
	}

	s.loadMu.Lock()
	if seq < s.appliedSeq {
		s.loadMu.Unlock()
		slog.Debug("discarding superseded listing", "seq", seq)
		return s.store.Len(), nil
	}
	defer s.loadMu.Unlock()
	s.appliedSeq = seq
	snap := s.store.Load(records)
	slog.Debug("working set reloaded", "records", len(snap.Records), "version", snap.Version)

	// Under loadMu so the cache never ends on an older listing.
	if s.cache != nil {
		if err := s.cache.Set(ctx, records); err != nil {
			slog.Warn("snapshot cache write failed", "error", err)
		}
	}
	return len(snap.Records), nil
}

// Warm loads the working set from the snapshot cache when possible and
// falls back to a full reload.
func (s *Service) Warm(ctx context.Context) (int, error) {
	if s.cache != nil {
		records, ok, err := s.cache.Get(ctx)
		switch {
		case err != nil:
			slog.Warn("snapshot cache read failed", "error", err)
		case ok:
			s.store.Load(records)
			slog.Info("working set loaded from cache", "records", len(records))
			return len(records), nil
		}
	}
	return s.Reload(ctx)
}

// ----------------------------------------------------------------------------
// Views
// ----------------------------------------------------------------------------

// View runs the table pipeline for state.
func (s *Service) View(state ViewState) View {
	return s.ctrl.Run(state)
}

// Analytics summarizes the whole working set.
func (s *Service) Analytics() Summary {
	return s.ctrl.Analytics()
}

// Get returns a record from the working set, asking the store when the id
// is not loaded.
func (s *Service) Get(ctx context.Context, id string) (StudentRecord, error) {
	if r, ok := s.store.Snapshot().ByID(id); ok {
		return r, nil
	}
	r, err := s.persistence.Get(ctx, id)
	if err != nil {
		return StudentRecord{}, err
	}
	return Derive(r), nil
}

// ----------------------------------------------------------------------------
// Mutations
// ----------------------------------------------------------------------------

// ValidateCandidate checks raw form values.
func (s *Service) ValidateCandidate(c Candidate) FieldErrors {
	return s.validator.ValidateRecord(c)
}

// ValidateField checks one raw form value.
func (s *Service) ValidateField(field Field, value string) error {
	return s.validator.ValidateField(field, value)
}

// Create validates f and creates it in the store. Field errors block the
// call with *ValidationFailedError.
func (s *Service) Create(ctx context.Context, f StudentFields) (StudentRecord, error) {
	f = f.Normalize()
	if errs := s.validator.ValidateFields(f); len(errs) > 0 {
		return StudentRecord{}, &ValidationFailedError{Errors: errs}
	}
	created, err := s.persistence.Create(ctx, f)
	s.rec.MutationDone("create", err)
	if err != nil {
		return StudentRecord{}, err
	}
	return Derive(created), s.refresh(ctx)
}

// Update validates f and replaces the record's fields in the store.
func (s *Service) Update(ctx context.Context, id string, f StudentFields) (StudentRecord, error) {
	f = f.Normalize()
	if errs := s.validator.ValidateFields(f); len(errs) > 0 {
		return StudentRecord{}, &ValidationFailedError{Errors: errs}
	}
	updated, err := s.persistence.Update(ctx, id, f)
	s.rec.MutationDone("update", err)
	if err != nil {
		return StudentRecord{}, err
	}
	return Derive(updated), s.refresh(ctx)
}

// Delete removes one record.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.persistence.Delete(ctx, id)
	s.rec.MutationDone("delete", err)
	if err != nil {
		return err
	}
	return s.refresh(ctx)
}

// BulkDelete removes every record.
func (s *Service) BulkDelete(ctx context.Context) (int64, error) {
	n, err := s.persistence.BulkDelete(ctx)
	s.rec.MutationDone("bulk_delete", err)
	if err != nil {
		return 0, err
	}
	return n, s.refresh(ctx)
}

// refresh drops the cached snapshot and reloads. It starts its own listing
// instead of joining one in flight, which may predate the write. The write
// has already succeeded, so a failure here is reported as a stale working set.
func (s *Service) refresh(ctx context.Context) error {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			slog.Warn("snapshot cache invalidate failed", "error", err)
		}
	}
	if _, err := s.reload(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStaleWorkingSet, err)
	}
	return nil
}

// ErrStaleWorkingSet wraps a reload failure after a successful write.
var ErrStaleWorkingSet = errors.New("change saved but working set could not be refreshed")

// ----------------------------------------------------------------------------
// Import / export
// ----------------------------------------------------------------------------

// parseImport parses text and splits the rows into valid rows and row
// errors from whole-record validation.
func (s *Service) parseImport(text string) (*Document, []ImportRow, []RowError, error) {
	doc, err := s.codec.ParseDocument(text)
	if err != nil {
		return nil, nil, nil, err
	}
	var valid []ImportRow
	var invalid []RowError
	for _, row := range doc.Rows {
		if errs := s.validator.ValidateFields(row.Fields); len(errs) > 0 {
			invalid = append(invalid, RowError{Line: row.Line, Message: errs.Error()})
			continue
		}
		valid = append(valid, row)
	}
	return doc, valid, invalid, nil
}

// PreviewImport reports what Import would do with text, without writing.
func (s *Service) PreviewImport(text string, opts ImportOptions) (ImportPreview, error) {
	doc, _, invalid, err := s.parseImport(text)
	if err != nil {
		return ImportPreview{}, err
	}
	return BuildPreview(doc, invalid, s.store.Snapshot(), opts), nil
}

// Import parses, validates and reconciles text into the store, then reloads
// the working set. With SkipInvalid false any row error blocks every write.
func (s *Service) Import(ctx context.Context, fileName, text string, opts ImportOptions) (ImportReport, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return ImportReport{}, err
	}
	defer s.limiter.Release()

	if opts.YieldEvery <= 0 {
		opts.YieldEvery = s.importDefs.YieldEvery
	}
	if opts.YieldPause <= 0 {
		opts.YieldPause = s.importDefs.YieldPause
	}

	report := newImportReport(ctx, fileName, opts)
	log := logging.WithFields(ctx, "import_id", report.ID, "file", fileName)

	doc, valid, invalid, err := s.parseImport(text)
	if err != nil {
		s.rec.ImportDone(*report, err)
		return ImportReport{}, err
	}
	report.BlankRows = doc.Skipped
	rowErrors := mergeRowErrors(doc.Errors, invalid)

	if len(rowErrors) > 0 && !opts.SkipInvalid {
		report.Blocked = true
		report.Result.Errors = rowErrors
		report.FinishedAt = time.Now()
		s.history.Add(*report)
		s.rec.ImportDone(*report, nil)
		log.Info("import blocked by invalid rows", "errors", len(rowErrors))
		return *report, nil
	}

	result, err := s.reconciler.Run(ctx, valid, opts)
	if err != nil {
		s.rec.ImportDone(*report, err)
		return ImportReport{}, fmt.Errorf("reconcile import: %w", err)
	}
	result.Errors = mergeRowErrors(rowErrors, result.Errors)
	report.Result = result
	report.FinishedAt = time.Now()
	s.history.Add(*report)
	s.rec.ImportDone(*report, nil)

	log.Info("import completed",
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
		"duration_ms", report.Duration().Milliseconds(),
	)

	if result.Created+result.Updated == 0 {
		return *report, nil
	}
	return *report, s.refresh(ctx)
}

// ImportReport returns a previous import's report.
func (s *Service) ImportReport(id string) (ImportReport, bool) {
	return s.history.Get(id)
}

// RecentImports returns up to n reports, newest first.
func (s *Service) RecentImports(n int) []ImportReport {
	return s.history.Recent(n)
}

// Export serializes every record matching state's filters in its sort
// order. Pagination is ignored.
func (s *Service) Export(state ViewState) string {
	return ToCSV(s.ctrl.Matching(state))
}

// Template returns the import template document.
func (s *Service) Template() string {
	return TemplateCSV()
}

type nopRecorder struct{}

func (nopRecorder) ReloadDone(time.Duration, int, error) {}
func (nopRecorder) MutationDone(string, error)           {}
func (nopRecorder) ImportDone(ImportReport, error)       {}
