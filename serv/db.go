package serv

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// Db is the authoritative per-database record. It owns exactly one
// SQLite connection; mu guards every data-plane operation on it.
type Db struct {
	Name     string
	Path     string
	IsMemory bool
	Conf     *DbConfig

	storedStatements map[string]string
	macros           map[string]*Macro

	sqldb *sql.DB
	mu    sync.Mutex
}

// openSQLite opens the single connection backing a Db. For memory
// databases the name is carried in the URI so each keeps its own store.
func openSQLite(path string, isMemory bool, name string) (*sql.DB, error) {
	dsn := path
	if isMemory {
		dsn = fmt.Sprintf("file:%s?mode=memory", name)
	}

	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}

	// One connection per database, never pooled. The per-Db mutex is the
	// sole synchronization primitive; a second connection would bypass it.
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)

	if err := sqldb.Ping(); err != nil {
		sqldb.Close() //nolint:errcheck
		return nil, fmt.Errorf("database ping: %w", err)
	}

	return sqldb, nil
}

// applyPragmas enforces the configured read-only flag and journal mode
func (db *Db) applyPragmas() error {
	if db.Conf.ReadOnly {
		if _, err := db.sqldb.Exec("PRAGMA query_only = true"); err != nil {
			return fmt.Errorf("setting query_only: %w", err)
		}
	}

	var mode string
	row := db.sqldb.QueryRow("PRAGMA journal_mode = " + strings.ToUpper(db.Conf.JournalMode))
	if err := row.Scan(&mode); err != nil {
		return fmt.Errorf("setting journal_mode: %w", err)
	}
	return nil
}

// sqliteVersion reports the version of the linked SQLite library
func (db *Db) sqliteVersion() (string, error) {
	var version string
	err := db.sqldb.QueryRow("SELECT sqlite_version()").Scan(&version)
	return version, err
}

// backupSourcePath is the filename the backup name is derived from.
// Memory databases have no file, so the name doubles as the stem.
func (db *Db) backupSourcePath() string {
	if db.IsMemory {
		return db.Name + ".db"
	}
	return db.Path
}

// Close releases the underlying connection
func (db *Db) Close() error {
	return db.sqldb.Close()
}
