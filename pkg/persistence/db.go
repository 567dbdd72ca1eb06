// Package persistence provides SQLite-based storage for onboarding progress.
package persistence

import (
	"database/sql"
	"fmt"
	"sync"

	"fitcoach/pkg/logx"
)

// Singleton database connection. The main binary goes through Initialize and
// Progress; tests open independent databases via InitializeDatabase/NewStore.
//
//nolint:gochecknoglobals // Intentional singleton pattern for database access
var (
	globalDB     *sql.DB
	globalStore  *Store
	globalDBOnce sync.Once
	globalDBMu   sync.RWMutex
	dbLogger     *logx.Logger
)

// Initialize sets up the singleton database connection. Must be called once
// at startup before any store access; subsequent calls are no-ops.
func Initialize(dbPath string) error {
	var initErr error

	globalDBOnce.Do(func() {
		dbLogger = logx.NewLogger("persistence")

		db, err := InitializeDatabase(dbPath)
		if err != nil {
			initErr = err
			return
		}

		globalDB = db
		globalStore = NewStore(db)
		dbLogger.Info("database initialized: %s", dbPath)
	})

	return initErr
}

// InitializeDatabase opens a SQLite database at dbPath and ensures the schema
// is current. Safe to call multiple times on the same path.
func InitializeDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SQLite supports a single writer; the per-user locks in Store serialize
	// read-modify-write sequences above this.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return db, nil
}

// Progress returns the singleton progress store.
// Panics if Initialize has not been called.
func Progress() *Store {
	globalDBMu.RLock()
	defer globalDBMu.RUnlock()

	if globalStore == nil {
		panic("persistence.Initialize must be called before Progress")
	}
	return globalStore
}

// IsInitialized returns true if the singleton database has been initialized.
func IsInitialized() bool {
	globalDBMu.RLock()
	defer globalDBMu.RUnlock()
	return globalDB != nil
}

// Close closes the singleton database connection during shutdown.
func Close() error {
	globalDBMu.Lock()
	defer globalDBMu.Unlock()

	if globalDB != nil {
		err := globalDB.Close()
		globalDB = nil
		globalStore = nil
		if err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	return nil
}

// Reset closes the database and resets the singleton so tests can
// re-initialize. Test use only.
func Reset() error {
	globalDBMu.Lock()
	defer globalDBMu.Unlock()

	if globalDB != nil {
		if err := globalDB.Close(); err != nil {
			return fmt.Errorf("failed to close database during reset: %w", err)
		}
		globalDB = nil
		globalStore = nil
	}

	globalDBOnce = sync.Once{}
	dbLogger = nil
	return nil
}
