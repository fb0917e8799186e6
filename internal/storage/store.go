// Package storage keeps the boot record and share ledger in SQLite.
//
// Open must succeed before the device connects. A database written by a
// newer build, or a file that is not a database at all, is erased and
// recreated; any other failure is returned.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"

	"github.com/mattn/go-sqlite3"

	"github.com/Iron-Ham/poolminer/internal/errors"
	"github.com/Iron-Ham/poolminer/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - boots and shares tables
const currentSchemaVersion = 1

// Store is an open ledger database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the ledger at path, erasing it once if it is from a
// newer schema version or is not a valid database.
func Open(path string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	logger = logger.WithComponent("storage")

	s, err := open(path)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, errors.ErrStorageVersion) && !errors.Is(err, errors.ErrStorageCorrupted) {
		return nil, errors.NewStorageError("failed to open ledger", err).WithPath(path)
	}

	logger.Warn("erasing ledger", "path", path, "reason", err.Error())
	if err := erase(path); err != nil {
		return nil, errors.NewStorageError("failed to erase ledger", err).WithPath(path)
	}

	s, err = open(path)
	if err != nil {
		return nil, errors.NewStorageError("failed to recreate ledger", err).WithPath(path)
	}
	return s, nil
}

func open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, classify(fmt.Errorf("failed to connect to database: %w", err))
	}

	// SQLite allows one writer; the session and the CLI never need more.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, classify(fmt.Errorf("failed to apply pragmas: %w", err))
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, classify(fmt.Errorf("failed to apply schema: %w", err))
	}

	return &Store{db: db, path: path}, nil
}

// classify tags SQLite's "not a database" and "corrupt" results with
// ErrStorageCorrupted.
func classify(err error) error {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && (sqlErr.Code == sqlite3.ErrNotADB || sqlErr.Code == sqlite3.ErrCorrupt) {
		return errors.Join(errors.ErrStorageCorrupted, err)
	}
	return err
}

func erase(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema refuses databases from a newer build before touching them,
// then creates the tables and records the current version.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("%w: found %d, supported %d", errors.ErrStorageVersion, version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// schemaVersion reads PRAGMA user_version.
func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
	return v, err
}
