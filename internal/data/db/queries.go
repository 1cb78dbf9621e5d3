package db

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds the statements run against the kv_store table.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// KvStore is a row of kv_store. Times are unix nanoseconds.
type KvStore struct {
	Key       string
	Value     []byte
	ExpiresAt sql.NullInt64
	CreatedAt int64
	UpdatedAt int64
}

const kvGet = `SELECT key, value, expires_at, created_at, updated_at FROM kv_store WHERE key = ?`

// KVGet returns sql.ErrNoRows when the key is absent.
func (q *Queries) KVGet(ctx context.Context, key string) (KvStore, error) {
	var row KvStore
	err := q.db.QueryRowContext(ctx, kvGet, key).Scan(
		&row.Key,
		&row.Value,
		&row.ExpiresAt,
		&row.CreatedAt,
		&row.UpdatedAt,
	)
	return row, err
}

const kvSet = `
INSERT INTO kv_store (key, value, expires_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (key) DO UPDATE SET
    value = excluded.value,
    expires_at = excluded.expires_at,
    updated_at = excluded.updated_at`

type KVSetParams struct {
	Key       string
	Value     []byte
	ExpiresAt sql.NullInt64
	CreatedAt int64
	UpdatedAt int64
}

func (q *Queries) KVSet(ctx context.Context, arg KVSetParams) error {
	_, err := q.db.ExecContext(ctx, kvSet, arg.Key, arg.Value, arg.ExpiresAt, arg.CreatedAt, arg.UpdatedAt)
	return err
}

const kvDelete = `DELETE FROM kv_store WHERE key = ?`

func (q *Queries) KVDelete(ctx context.Context, key string) error {
	_, err := q.db.ExecContext(ctx, kvDelete, key)
	return err
}

const kvListKeys = `
SELECT key FROM kv_store
WHERE expires_at IS NULL OR expires_at >= ?
ORDER BY key`

func (q *Queries) KVListKeys(ctx context.Context, now int64) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, kvListKeys, now)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

const kvSweepExpired = `DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at < ?`

// KVSweepExpired deletes expired rows and returns how many were removed.
func (q *Queries) KVSweepExpired(ctx context.Context, now int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, kvSweepExpired, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
