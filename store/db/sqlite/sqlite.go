// Package sqlite implements the store driver on SQLite for dev and test
// deployments.
package sqlite

import (
	"database/sql"

	"github.com/pkg/errors"
	// SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/luoshen/linkmate/internal/profile"
)

// DB is the sqlite-backed store driver.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a sqlite database identified by the profile DSN.
func NewDB(profile *profile.Profile) (*DB, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("sqlite", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database with dsn: %s", profile.DSN)
	}
	// modernc.org/sqlite serializes writes itself; a single connection
	// avoids SQLITE_BUSY on concurrent upserts.
	db.SetMaxOpenConns(1)

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
