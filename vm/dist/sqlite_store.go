package dist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chazu/waterscript/vm"
	_ "modernc.org/sqlite"
)

// SQLStore is a persistent compiled-unit cache backed by SQLite. Each row
// holds one CBOR record keyed by source hash.
type SQLStore struct {
	db   *sql.DB
	path string
}

// OpenSQLStore opens or creates the cache database at path.
func OpenSQLStore(path string) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("dist: creating cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dist: opening database: %w", err)
	}
	// One writer at a time; SQLite serializes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("dist: setting busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS units (
		source_hash BLOB PRIMARY KEY,
		version     INTEGER NOT NULL,
		record      BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("dist: creating table: %w", err)
	}
	return &SQLStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLStore) Path() string { return s.path }

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores u under sourceHash, replacing any earlier unit.
func (s *SQLStore) Put(ctx context.Context, sourceHash [32]byte, u *vm.Unit) error {
	data, err := MarshalUnit(sourceHash, u)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO units (source_hash, version, record) VALUES (?, ?, ?)",
		sourceHash[:], int(FormatVersion), data,
	)
	if err != nil {
		return fmt.Errorf("dist: saving unit: %w", err)
	}
	return nil
}

// Get loads the unit stored under sourceHash. A missing row, or a row
// written by another format version, reports false with a nil error.
func (s *SQLStore) Get(ctx context.Context, sourceHash [32]byte) (*vm.Unit, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT record FROM units WHERE source_hash = ? AND version = ?",
		sourceHash[:], int(FormatVersion),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("dist: querying unit: %w", err)
	}
	_, u, err := UnmarshalUnit(data)
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// Delete removes the unit stored under sourceHash.
func (s *SQLStore) Delete(ctx context.Context, sourceHash [32]byte) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM units WHERE source_hash = ?", sourceHash[:]); err != nil {
		return fmt.Errorf("dist: deleting unit: %w", err)
	}
	return nil
}

// Len returns the number of stored units.
func (s *SQLStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM units").Scan(&n); err != nil {
		return 0, fmt.Errorf("dist: counting units: %w", err)
	}
	return n, nil
}

// Preload indexes every stored unit of the current version in store and
// returns how many were loaded. Rows that fail verification are skipped.
func (s *SQLStore) Preload(ctx context.Context, store *vm.ContentStore) (int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT record FROM units WHERE version = ?", int(FormatVersion))
	if err != nil {
		return 0, fmt.Errorf("dist: listing units: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return n, fmt.Errorf("dist: scanning unit: %w", err)
		}
		h, u, err := UnmarshalUnit(data)
		if err != nil {
			continue
		}
		store.IndexUnit(h, u)
		n++
	}
	return n, rows.Err()
}
