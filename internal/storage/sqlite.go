package storage

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// NewSQLiteStorage opens (or creates) the SQLite database at dbPath.
func NewSQLiteStorage(dbPath string) (*SQLStorage, error) {
	if dbPath == "" {
		dbPath = DefaultSQLitePath
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, errors.Wrapf(err, "create directory for %s", dbPath)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", dbPath)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	return newSQLStorage(db, dialectSQLite)
}
