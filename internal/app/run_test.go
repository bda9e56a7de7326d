package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/booktab/internal/model"
	"github.com/hitoshi/booktab/internal/safety"
)

// setTestEnv は一時ディレクトリのSQLiteとバックアップ先を使う環境を設定し、そのディレクトリを返す。
func setTestEnv(t *testing.T) string {
	t.Helper()
	keepDefaultLogger(t)

	dir := t.TempDir()
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "booktab.db"))
	t.Setenv("BACKUP_DIR", filepath.Join(dir, "backups"))
	t.Setenv("BACKUP_INTERVAL", "0")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LOG_LEVEL", "info")
	return dir
}

// execute はルートコマンドを実行し、コマンド出力を返す。
func execute(t *testing.T, ctx context.Context, stdin string, args ...string) (string, error) {
	t.Helper()

	var logs, out bytes.Buffer
	root := NewRootCommand(&logs)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

// writeImportFile は1冊の本を含むエクスポートファイルを書き出す。
func writeImportFile(t *testing.T, dir string) string {
	t.Helper()

	data := &model.LibraryData{
		SchemaVersion: 1,
		Books: model.BookCollection{
			"book-1": {
				ID:       "book-1",
				Title:    "Dune",
				Authors:  []string{"Frank Herbert"},
				Status:   model.StatusReading,
				AddedAt:  "2026-02-25T10:00:00.000Z",
				Tags:     []string{},
				Priority: 0,
			},
		},
		Settings: model.UserSettings{DefaultView: model.ViewCurrent},
	}
	content, err := safety.ExportToJSON(data)
	if err != nil {
		t.Fatalf("ExportToJSON: %v", err)
	}
	path := filepath.Join(dir, "import.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write import file: %v", err)
	}
	return path
}

// exportedBooks はexportコマンドの出力からBooksを取り出す。
func exportedBooks(t *testing.T) model.BookCollection {
	t.Helper()

	out, err := execute(t, context.Background(), "", "export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var data model.LibraryData
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("export output is not JSON: %v\n%s", err, out)
	}
	return data.Books
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	keepDefaultLogger(t)
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

func TestRun_UnknownCommand_ReturnsError(t *testing.T) {
	keepDefaultLogger(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"worker"}); err == nil {
		t.Fatal("expected error for unknown subcommand")
	}
}

func TestRun_MigrateCreatesSQLiteDatabase(t *testing.T) {
	dir := setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"migrate"}); err != nil {
		t.Fatalf("Run(migrate): %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "booktab.db")); err != nil {
		t.Errorf("database file not created: %v", err)
	}
	if !strings.Contains(buf.String(), "database migrations completed successfully") {
		t.Errorf("completion not logged: %s", buf.String())
	}
}

func TestRun_MigrateMemoryIsNoop(t *testing.T) {
	keepDefaultLogger(t)
	t.Setenv("STORAGE_DRIVER", "memory")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"migrate"}); err != nil {
		t.Fatalf("Run(migrate): %v", err)
	}
}

func TestRun_ExportEmptyLibrary(t *testing.T) {
	setTestEnv(t)

	if books := exportedBooks(t); len(books) != 0 {
		t.Errorf("exported %d books, want 0", len(books))
	}
}

func TestRun_ExportToFile(t *testing.T) {
	dir := setTestEnv(t)
	dest := filepath.Join(dir, "out.json")

	out, err := execute(t, context.Background(), "", "export", "-o", dest)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, dest) {
		t.Errorf("output should name the file: %q", out)
	}
	content, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if res := safety.ParseImportFile(content); !res.OK() {
		t.Errorf("exported file is not importable: %s", res.Error)
	}
}

func TestRun_ImportWithYesReplacesLibrary(t *testing.T) {
	dir := setTestEnv(t)
	path := writeImportFile(t, dir)

	out, err := execute(t, context.Background(), "", "import", "--yes", path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "1冊をインポートしました") {
		t.Errorf("unexpected output: %q", out)
	}

	books := exportedBooks(t)
	if len(books) != 1 || books["book-1"].Title != "Dune" {
		t.Errorf("library after import = %+v", books)
	}

	// 置き換え前のデータがバックアップとして残る
	backups, err := filepath.Glob(filepath.Join(dir, "backups", "booktab-backup-*.json"))
	if err != nil || len(backups) != 1 {
		t.Errorf("backups = %v, %v", backups, err)
	}
}

func TestRun_ImportConfirmedFromInput(t *testing.T) {
	dir := setTestEnv(t)
	path := writeImportFile(t, dir)

	if _, err := execute(t, context.Background(), "y\n", "import", path); err != nil {
		t.Fatalf("import: %v", err)
	}
	if books := exportedBooks(t); len(books) != 1 {
		t.Errorf("exported %d books, want 1", len(books))
	}
}

func TestRun_ImportDeclinedKeepsLibrary(t *testing.T) {
	dir := setTestEnv(t)
	path := writeImportFile(t, dir)

	out, err := execute(t, context.Background(), "n\n", "import", path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "中止しました") {
		t.Errorf("unexpected output: %q", out)
	}
	if books := exportedBooks(t); len(books) != 0 {
		t.Errorf("exported %d books, want 0", len(books))
	}
}

func TestRun_ImportInvalidFile(t *testing.T) {
	dir := setTestEnv(t)
	path := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, context.Background(), "", "import", "--yes", path); err == nil {
		t.Fatal("expected error for invalid import file")
	}
}

func TestRun_ImportMissingFile(t *testing.T) {
	dir := setTestEnv(t)

	if _, err := execute(t, context.Background(), "", "import", "--yes", filepath.Join(dir, "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRun_BackupWritesFile(t *testing.T) {
	dir := setTestEnv(t)

	if _, err := execute(t, context.Background(), "", "backup"); err != nil {
		t.Fatalf("backup: %v", err)
	}
	backups, err := filepath.Glob(filepath.Join(dir, "backups", "booktab-auto-*.json"))
	if err != nil || len(backups) != 1 {
		t.Errorf("backups = %v, %v", backups, err)
	}
}

func TestRun_ServeStopsWhenContextIsCancelled(t *testing.T) {
	keepDefaultLogger(t)
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("BIND_ADDRESS", "127.0.0.1")
	t.Setenv("SERVER_PORT", "0")
	t.Setenv("BACKUP_INTERVAL", "0")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if _, err := execute(t, ctx, "", "serve"); err != nil {
		t.Fatalf("serve: %v", err)
	}
}

func TestRun_ServeInvalidPortFails(t *testing.T) {
	keepDefaultLogger(t)
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("BIND_ADDRESS", "127.0.0.1")
	t.Setenv("SERVER_PORT", "not-a-port")
	t.Setenv("BACKUP_INTERVAL", "0")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := execute(t, ctx, "", "serve")
	if err == nil || !strings.Contains(err.Error(), "listen") {
		t.Fatalf("serve error = %v, want listen error", err)
	}
}
