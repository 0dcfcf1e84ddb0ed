// Package store is the relational state layer: one SQLite database holding
// every image record with its associations, page progress, failed pages,
// author bans and operator marks. All item writes are transactional, so a
// crash never leaves a half-written record behind.
package store

import (
	"database/sql"
	_ "embed"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/internetarchive/Talos/internal/pkg/log"
)

//go:embed schema.sql
var ddl string

// Store wraps the single-writer SQLite handle.
type Store struct {
	db     *sql.DB
	logger *log.FieldedLogger
}

// Open opens (or creates) the state database at dbFile, applies the schema
// and any pending migrations, and returns a ready Store.
func Open(dbFile string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+dbFile)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	logger := log.NewFieldedLogger(&log.Fields{
		"component": "store",
	})

	if _, err := db.Exec(ddl); err != nil {
		logger.Error("error creating database schema", "err", err.Error())
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
