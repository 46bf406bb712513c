// Package core provides the in-memory student data engine.
//
// This package holds all domain logic independent of any UI, transport or
// storage. It can be used by web handlers, the CLI, or tests without
// modification.
//
// # Architecture
//
// The working set flows through a fixed pipeline:
//
//   - [Store]: the full collection of records loaded from the remote store,
//     with AverageScore and Grade derived on every [Store.Load].
//   - [Filter], [Sort], [Paginate]: pure functions producing the table view.
//   - [Aggregator]: analytics over the unfiltered working set.
//   - [Validator]: field rules shared by interactive edits and import.
//   - [Codec]: the CSV exchange format (tokenizer, document parser,
//     serializer, template).
//   - [Reconciler]: writes parsed import rows through a [Persistence].
//   - [Controller]: composes the pure stages for a [ViewState].
//   - [Service]: the entry point tying all of the above to a [Persistence].
//
// # Averages
//
// Two averaging policies exist and are kept apart on purpose:
//
//   - [PresentScoreAverage]: mean of the present scores, nil if none. Used
//     for the working set, grades and analytics.
//   - [ImportPreviewAverage]: missing scores count as zero, always over three
//     subjects. Used by import preview and mirrored by [ToCSV] writing 0.
//
// # Import
//
// An import parses the document, validates each row and reconciles the
// valid rows against a fresh listing of the store, one row at a time:
//
//  1. [Codec.ParseDocument] fails fast on a missing required column
//  2. Row problems become [RowError] values carrying the physical line number
//  3. [Reconciler.Run] creates, updates or skips each row
//  4. The [Service] reloads the working set once the batch is done
//
// # Error Handling
//
// Field and row errors are returned as data. Document structure and
// transport errors are returned as errors and mapped to user-facing
// messages with [MapError]:
//
//   - VAL001-VAL003: Validation errors
//   - IMP001-IMP003: Import errors
//   - REM001-REM007: Remote store errors
//   - FILE001-FILE003: File errors
package core
