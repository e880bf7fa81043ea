package database

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"callcrm/internal/platform/config"
)

func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.Path
	if len(dsn) > 5 && dsn[:5] == "file:" {
		dsn = dsn[5:]
	}

	db, err := sql.Open("sqlite3", dsn+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// WithTx runs fn inside a transaction: commit on nil error, rollback
// otherwise. The rollback also covers panics so the connection is always
// released back to the pool.
func WithTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
