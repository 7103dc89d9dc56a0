// MeterDB holds the gas series of every meter point: the meter points
// themselves, their measures, thresholds and a small key/value config table.
// Measures and thresholds are upserted so a run can be replayed safely.
package meterdb

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/NotCoffee418/dbmigrator"
	log "github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type Store struct {
	db *sql.DB
}

// Open opens the database at path and applies migrations.
// With reinit the existing file is removed first.
func Open(path string, reinit bool) (*Store, error) {
	if reinit {
		log.WithField("path", path).Warn("Reinitializing database")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove database: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single writer, avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	// Create DB before migrations
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Apply migrations
	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(
		db,
		migrationFS,
		"migrations",
	)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for read-only consumers such as the exporter.
func (s *Store) DB() *sql.DB {
	return s.db
}
