// Package store persists generated bundles in SQLite. Records are insert-only
// and keyed by ULID.
package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/n0madic/go-appforge/internal/types"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ErrNotFound is returned by Get for an unknown ID.
var ErrNotFound = errors.New("bundle not found")

// Record is one stored generation.
type Record struct {
	ID          string
	CreatedAt   time.Time
	Instruction string
	Model       string
	Stage       string
	Bundle      types.CodeBundle
}

// TimestampLayout is the created_at format used in API and CLI output.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Response converts the record to its wire form.
func (r *Record) Response() types.BundleResponse {
	return types.BundleResponse{
		ID:          r.ID,
		CreatedAt:   r.CreatedAt.UTC().Format(TimestampLayout),
		Instruction: r.Instruction,
		Model:       r.Model,
		Stage:       r.Stage,
		Bundle:      r.Bundle,
	}
}

// Store wraps the SQLite handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(path, 0o600)
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := userVersion(db)
	if err != nil {
		return err
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS bundles (
		  id          TEXT PRIMARY KEY,
		  created_at  INTEGER NOT NULL,
		  instruction TEXT NOT NULL,
		  model       TEXT NOT NULL,
		  stage       TEXT NOT NULL,
		  frontend    TEXT NOT NULL,
		  backend     TEXT NOT NULL,
		  database    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_bundles_created
		ON bundles(created_at DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := setUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

func userVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

func setUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// NewID returns a fresh ULID string.
func NewID(now time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// Insert stores rec. A zero CreatedAt or empty ID is filled in, and rec is
// updated with the values used.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.ID == "" {
		rec.ID = NewID(rec.CreatedAt)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bundles (id, created_at, instruction, model, stage, frontend, backend, database)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.CreatedAt.UnixMilli(), rec.Instruction, rec.Model, rec.Stage,
		rec.Bundle.Frontend(), rec.Bundle.Backend(), rec.Bundle.Database(),
	)
	if err != nil {
		return fmt.Errorf("insert bundle: %w", err)
	}
	return nil
}

const selectColumns = `id, created_at, instruction, model, stage, frontend, backend, database`

// Get returns the record with the given ID or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM bundles WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bundle: %w", err)
	}
	return rec, nil
}

// List returns up to limit records, newest first. A non-positive limit uses
// DefaultListLimit; larger values are capped at MaxListLimit.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM bundles ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bundle: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var (
		rec                         Record
		createdMs                   int64
		frontend, backend, database string
	)
	if err := s.Scan(&rec.ID, &createdMs, &rec.Instruction, &rec.Model, &rec.Stage, &frontend, &backend, &database); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.UnixMilli(createdMs)
	rec.Bundle = types.NewCodeBundle(frontend, backend, database)
	return &rec, nil
}
