package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/booktab/internal/database"
)

// SQLStore はstorage_entriesテーブルを使用したSubstrate実装。
// ドライバごとにプレースホルダとUPSERT構文を切り替える。
type SQLStore struct {
	db       *sql.DB
	getQuery string
	setQuery string
	driver   string
}

// NewSQLStore はSQLStoreを生成する。driverはdatabase.DriverPostgres、DriverSQLite、DriverMySQLのいずれか。
func NewSQLStore(db *sql.DB, driver string) (*SQLStore, error) {
	switch driver {
	case database.DriverPostgres:
		return &SQLStore{
			db:       db,
			getQuery: `SELECT value FROM storage_entries WHERE key = $1`,
			setQuery: `INSERT INTO storage_entries (key, value, updated_at)
				 VALUES ($1, $2::jsonb, $3)
				 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
			driver: driver,
		}, nil
	case database.DriverSQLite:
		return &SQLStore{
			db:       db,
			getQuery: `SELECT value FROM storage_entries WHERE key = ?`,
			setQuery: `INSERT INTO storage_entries (key, value, updated_at)
				 VALUES (?, ?, ?)
				 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			driver: driver,
		}, nil
	case database.DriverMySQL:
		// MySQLではkeyが予約語のためバッククォートで囲む
		return &SQLStore{
			db:       db,
			getQuery: "SELECT value FROM storage_entries WHERE `key` = ?",
			setQuery: "INSERT INTO storage_entries (`key`, value, updated_at) VALUES (?, ?, ?)" +
				" ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = VALUES(updated_at)",
			driver: driver,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", driver)
	}
}

// Get は指定キーの値を取得する。行が存在しない場合はok=falseを返す。
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.getQuery, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read storage entry: %w", err)
	}
	return []byte(value), true, nil
}

// Set は指定キーの値をUPSERTする。
func (s *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	now := time.Now().UTC()
	var updatedAt any = now
	if s.driver == database.DriverSQLite {
		updatedAt = now.Format("2006-01-02T15:04:05.000Z")
	}

	if _, err := s.db.ExecContext(ctx, s.setQuery, key, string(value), updatedAt); err != nil {
		return fmt.Errorf("failed to write storage entry: %w", err)
	}
	return nil
}

// Ping はデータベースへの接続を確認する。
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
