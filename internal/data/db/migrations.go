package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hay-kot/bell/internal/core/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration is one versioned schema change with its rollback.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// loadMigrations reads NNNN_name.{up,down}.sql files from fsys, sorted by
// version. Every version needs exactly one up and one down file.
func loadMigrations(fsys fs.FS) ([]Migration, error) {
	files, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, file := range files {
		version, name, up, err := parseFilename(path.Base(file))
		if err != nil {
			return nil, fmt.Errorf("invalid migration filename %q: %w", file, err)
		}

		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}

		target := &m.DownSQL
		if up {
			target = &m.UpSQL
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate migration file for version %04d", version)
		}
		*target = string(content)
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration %04d needs both up and down files", m.Version)
		}
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b Migration) int { return a.Version - b.Version })

	return migrations, nil
}

// parseFilename splits "0001_kv_store.up.sql" into (1, "kv_store", true).
func parseFilename(filename string) (version int, name string, up bool, err error) {
	base, ok := strings.CutSuffix(filename, ".up.sql")
	up = ok
	if !ok {
		base, ok = strings.CutSuffix(filename, ".down.sql")
		if !ok {
			return 0, "", false, fmt.Errorf("expected .up.sql or .down.sql suffix")
		}
	}

	num, name, ok := strings.Cut(base, "_")
	if !ok || name == "" {
		return 0, "", false, fmt.Errorf("expected format NNNN_name.{up,down}.sql")
	}

	version, err = strconv.Atoi(num)
	if err != nil {
		return 0, "", false, fmt.Errorf("version %q is not a number: %w", num, err)
	}
	if version <= 0 {
		return 0, "", false, fmt.Errorf("version must be positive, got %d", version)
	}
	return version, name, up, nil
}

func migrateUp(ctx context.Context, conn *sql.DB) error {
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		return err
	}

	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}

	log := logging.Component("db")
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		err := inTx(ctx, conn, m.UpSQL,
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now().UnixNano())
		if err != nil {
			return fmt.Errorf("migration %04d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown reverts the last n applied migrations, newest first.
func MigrateDown(ctx context.Context, conn *sql.DB, n int) error {
	if n <= 0 {
		return fmt.Errorf("n must be positive, got %d", n)
	}

	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		return err
	}

	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}

	var revert []Migration
	for _, m := range slices.Backward(migrations) {
		if applied[m.Version] {
			revert = append(revert, m)
		}
	}
	if n > len(revert) {
		return fmt.Errorf("requested %d down migrations but only %d are applied", n, len(revert))
	}

	log := logging.Component("db")
	for _, m := range revert[:n] {
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("reverting migration")

		err := inTx(ctx, conn, m.DownSQL, "DELETE FROM schema_migrations WHERE version = ?", m.Version)
		if err != nil {
			return fmt.Errorf("revert migration %04d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// appliedVersions creates the tracking table if needed and returns the
// recorded versions.
func appliedVersions(ctx context.Context, conn *sql.DB) (map[int]bool, error) {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("creating schema_migrations table: %w", err)
	}

	rows, err := conn.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// inTx runs the migration script and its bookkeeping statement atomically.
func inTx(ctx context.Context, conn *sql.DB, script, record string, args ...any) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit()
}
