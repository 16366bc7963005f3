package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"go.trai.ch/zerr"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS records (
		key             TEXT PRIMARY KEY,
		display_name    TEXT NOT NULL,
		total_cases     TEXT NOT NULL DEFAULT '',
		new_cases       TEXT NOT NULL DEFAULT '',
		total_deaths    TEXT NOT NULL DEFAULT '',
		new_deaths      TEXT NOT NULL DEFAULT '',
		total_recovered TEXT NOT NULL DEFAULT '',
		observed_at     TEXT NOT NULL
	)`

// NewPostgres opens a Postgres-backed store and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, zerr.Wrap(err, "open postgres")
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, zerr.Wrap(err, "ping postgres")
	}

	return &sqlStore{
		db:      db,
		dialect: dialect{name: "postgres", numbered: true, schema: postgresSchema},
	}, nil
}
