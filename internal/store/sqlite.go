package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"go.trai.ch/zerr"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS records (
		key             TEXT PRIMARY KEY,
		display_name    TEXT NOT NULL,
		total_cases     TEXT NOT NULL DEFAULT '',
		new_cases       TEXT NOT NULL DEFAULT '',
		total_deaths    TEXT NOT NULL DEFAULT '',
		new_deaths      TEXT NOT NULL DEFAULT '',
		total_recovered TEXT NOT NULL DEFAULT '',
		observed_at     TEXT NOT NULL
	) WITHOUT ROWID`

// NewSQLite opens (creating if needed) the database file at path.
func NewSQLite(ctx context.Context, path string) (Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, zerr.With(zerr.Wrap(err, "create database directory"), "path", path)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, zerr.Wrap(err, "open sqlite")
	}

	// One writer at a time; the refresh loop is the only writer anyway.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, zerr.With(zerr.Wrap(err, "set pragma"), "pragma", pragma)
		}
	}

	return &sqlStore{
		db:      db,
		dialect: dialect{name: "sqlite", schema: sqliteSchema},
	}, nil
}
