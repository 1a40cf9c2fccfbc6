package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
  key        TEXT PRIMARY KEY,
  value      BLOB NOT NULL,
  expires_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(expires_at);
`

// SQLiteStore keeps cache entries in a table of a shared SQLite database.
// expires_at is unix nanoseconds; 0 means no expiry.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates the cache table if needed. The caller owns db.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("cache: nil db")
	}
	if _, err := db.ExecContext(ctx, cacheSchema); err != nil {
		return nil, fmt.Errorf("apply cache schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) live() sq.Or {
	return sq.Or{sq.Eq{"expires_at": 0}, sq.Gt{"expires_at": s.now().UnixNano()}}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query, args, err := sq.Select("value", "expires_at").
		From("cache_entries").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return nil, false, err
	}

	var (
		value   []byte
		expires int64
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %q: %w", key, err)
	}
	if expires != 0 && expires <= s.now().UnixNano() {
		_, _ = s.Delete(ctx, key)
		return nil, false, nil
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expires int64
	if ttl > 0 {
		expires = s.now().Add(ttl).UnixNano()
	}
	query, args, err := sq.Insert("cache_entries").
		Columns("key", "value", "expires_at").
		Values(key, value, expires).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	query, args, err := sq.Delete("cache_entries").Where(sq.Eq{"key": keys}).ToSql()
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, query, args)
}

func (s *SQLiteStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	query, args, err := sq.Delete("cache_entries").Where(likePrefix(prefix)).ToSql()
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, query, args)
}

func (s *SQLiteStore) CountPrefix(ctx context.Context, prefix string) (int, error) {
	query, args, err := sq.Select("COUNT(*)").
		From("cache_entries").
		Where(likePrefix(prefix)).
		Where(s.live()).
		ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache count %q: %w", prefix, err)
	}
	return n, nil
}

// Purge removes expired rows and reports how many were deleted.
func (s *SQLiteStore) Purge(ctx context.Context) (int, error) {
	query, args, err := sq.Delete("cache_entries").
		Where(sq.NotEq{"expires_at": 0}).
		Where(sq.LtOrEq{"expires_at": s.now().UnixNano()}).
		ToSql()
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, query, args)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the database belongs to the caller.
func (s *SQLiteStore) Close() error { return nil }

func (s *SQLiteStore) exec(ctx context.Context, query string, args []any) (int, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cache exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePrefix(prefix string) sq.Sqlizer {
	return sq.Expr(`key LIKE ? ESCAPE '\'`, likeEscaper.Replace(prefix)+"%")
}
