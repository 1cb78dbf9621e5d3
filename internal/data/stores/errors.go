package stores

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hay-kot/bell/internal/data/db"
)

// IsBusyError reports whether err is SQLITE_BUSY or one of its extended codes.
func IsBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_BUSY
	}
	return false
}

// IsCorruptionError reports whether err means the database file is unusable.
func IsCorruptionError(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CANTOPEN:
			return true
		}
	}

	msg := err.Error()
	return strings.Contains(msg, "database disk image is malformed") ||
		strings.Contains(msg, "file is not a database")
}

// IsNotFoundError reports whether err is a missing row.
func IsNotFoundError(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// RecoverFromCorruption moves a corrupt database and its WAL/SHM side files
// aside so the next Open starts fresh. It returns the backup path.
func RecoverFromCorruption(dataDir string) (string, error) {
	dbPath := filepath.Join(dataDir, db.FileName)
	backup := fmt.Sprintf("%s.corrupt.%s", dbPath, time.Now().Format("20060102-150405"))

	for _, suffix := range []string{"", "-wal", "-shm"} {
		src := dbPath + suffix
		if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := os.Rename(src, backup+suffix); err != nil {
			if suffix == "" {
				return "", fmt.Errorf("backup corrupted database: %w", err)
			}
			// Stale side files must not survive next to a fresh database.
			if rmErr := os.Remove(src); rmErr != nil {
				return "", fmt.Errorf("remove %s: %w", src, err)
			}
		}
	}

	return backup, nil
}

// OpenKV opens the database in dataDir, recovering once from a corrupt file.
func OpenKV(dataDir string, opts db.OpenOptions) (*db.DB, *KVStore, error) {
	database, err := db.Open(dataDir, opts)
	if err != nil && IsCorruptionError(err) {
		if _, rerr := RecoverFromCorruption(dataDir); rerr != nil {
			return nil, nil, errors.Join(err, rerr)
		}
		database, err = db.Open(dataDir, opts)
	}
	if err != nil {
		return nil, nil, err
	}
	return database, NewKVStore(database), nil
}
