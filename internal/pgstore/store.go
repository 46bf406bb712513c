// Package pgstore implements the student store contract on PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/gradebook/internal/core"
)

// DefaultPageSize is the list page size when none is configured.
const DefaultPageSize = 100

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const studentCodeConstraint = "students_student_code_key"

const schema = `
CREATE TABLE IF NOT EXISTS students (
	id               UUID PRIMARY KEY,
	student_code     TEXT NOT NULL,
	first_name       TEXT NOT NULL,
	last_name        TEXT NOT NULL,
	email            TEXT,
	birth_date       DATE,
	hometown         TEXT,
	math_score       DOUBLE PRECISION,
	literature_score DOUBLE PRECISION,
	english_score    DOUBLE PRECISION,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT students_student_code_key UNIQUE (student_code)
);
CREATE INDEX IF NOT EXISTS students_created_at_idx ON students (created_at, id);
`

const selectColumns = `id, student_code, first_name, last_name, email, birth_date,
	hometown, math_score, literature_score, english_score`

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists students in the students table.
type Store struct {
	db        DB
	pageSize  int
	validator *core.Validator
	now       func() time.Time
}

var _ core.Persistence = (*Store)(nil)

// New returns a Store over db. A pageSize below 1 uses DefaultPageSize.
func New(db DB, pageSize int) *Store {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return &Store{
		db:        db,
		pageSize:  pageSize,
		validator: core.NewValidator(),
		now:       time.Now,
	}
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate students: %w", err)
	}
	return nil
}

// List returns one page ordered by creation time. One extra row is fetched
// to decide HasNext.
func (s *Store) List(ctx context.Context, page int) (core.ListPage, error) {
	if page < 1 {
		page = 1
	}
	query := `SELECT ` + selectColumns + ` FROM students
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2`

	rows, err := s.db.Query(ctx, query, s.pageSize+1, (page-1)*s.pageSize)
	if err != nil {
		return core.ListPage{}, remoteErr("list", err)
	}
	defer rows.Close()

	items := make([]core.StudentRecord, 0, s.pageSize)
	for rows.Next() {
		var r row
		if err := rows.Scan(r.scanArgs()...); err != nil {
			return core.ListPage{}, remoteErr("list", fmt.Errorf("scan student: %w", err))
		}
		items = append(items, r.record())
	}
	if err := rows.Err(); err != nil {
		return core.ListPage{}, remoteErr("list", err)
	}

	hasNext := len(items) > s.pageSize
	if hasNext {
		items = items[:s.pageSize]
	}
	return core.ListPage{Items: items, HasNext: hasNext}, nil
}

func (s *Store) Get(ctx context.Context, id string) (core.StudentRecord, error) {
	pgID := toPgUUID(id)
	if !pgID.Valid {
		return core.StudentRecord{}, notFound("get")
	}
	var r row
	err := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM students WHERE id = $1`, pgID).Scan(r.scanArgs()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.StudentRecord{}, notFound("get")
	}
	if err != nil {
		return core.StudentRecord{}, remoteErr("get", err)
	}
	return r.record(), nil
}

func (s *Store) Create(ctx context.Context, f core.StudentFields) (core.StudentRecord, error) {
	f = f.Normalize()
	if err := core.CheckFields("create", s.validator, f); err != nil {
		return core.StudentRecord{}, err
	}

	id := uuid.New()
	args := append([]any{toPgUUID(id.String())}, writeArgs(f, s.now())...)
	query := `INSERT INTO students (id, student_code, first_name, last_name, email,
			birth_date, hometown, math_score, literature_score, english_score, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + selectColumns

	var r row
	if err := s.db.QueryRow(ctx, query, args...).Scan(r.scanArgs()...); err != nil {
		return core.StudentRecord{}, writeErr("create", err)
	}
	return r.record(), nil
}

func (s *Store) Update(ctx context.Context, id string, f core.StudentFields) (core.StudentRecord, error) {
	f = f.Normalize()
	if err := core.CheckFields("update", s.validator, f); err != nil {
		return core.StudentRecord{}, err
	}
	pgID := toPgUUID(id)
	if !pgID.Valid {
		return core.StudentRecord{}, notFound("update")
	}

	args := append([]any{pgID}, writeArgs(f, s.now())...)
	query := `UPDATE students SET
			student_code = $2, first_name = $3, last_name = $4, email = $5,
			birth_date = $6, hometown = $7, math_score = $8,
			literature_score = $9, english_score = $10, updated_at = $11
		WHERE id = $1
		RETURNING ` + selectColumns

	var r row
	err := s.db.QueryRow(ctx, query, args...).Scan(r.scanArgs()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.StudentRecord{}, notFound("update")
	}
	if err != nil {
		return core.StudentRecord{}, writeErr("update", err)
	}
	return r.record(), nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	pgID := toPgUUID(id)
	if !pgID.Valid {
		return notFound("delete")
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM students WHERE id = $1`, pgID)
	if err != nil {
		return remoteErr("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("delete")
	}
	return nil
}

func (s *Store) BulkDelete(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM students`)
	if err != nil {
		return 0, remoteErr("bulk_delete", err)
	}
	return tag.RowsAffected(), nil
}

func notFound(op string) error {
	return &core.RemoteError{Op: op, StatusCode: 404, Err: core.ErrNotFound}
}

func remoteErr(op string, err error) error {
	return &core.RemoteError{Op: op, Err: err}
}

// writeErr maps a unique violation on student_code to a field error.
func writeErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == studentCodeConstraint {
		return core.DuplicateCodeError(op)
	}
	return remoteErr(op, err)
}
