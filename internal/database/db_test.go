package database

import (
	"path/filepath"
	"testing"
)

// TestOpen_Postgres_ReturnsDBForAnyURL はsql.Openは接続を試行しないため、
// 形式が不正なURLでもDBオブジェクトが返ることを検証する。
func TestOpen_Postgres_ReturnsDBForAnyURL(t *testing.T) {
	db, err := Open(DriverPostgres, "postgres://invalid")
	if err != nil {
		t.Fatalf("Open returned unexpected error: %v", err)
	}
	if db == nil {
		t.Fatal("expected non-nil db")
	}
	defer db.Close()
}

// TestOpen_SQLite_CreatesParentDirectory はSQLiteファイルの親ディレクトリが作成され、
// Pingが成功することを検証する。
func TestOpen_SQLite_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "booktab.db")

	db, err := Open(DriverSQLite, path)
	if err != nil {
		t.Fatalf("Open returned unexpected error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open("oracle", "dsn"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
