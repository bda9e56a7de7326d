package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/booktab/internal/model"
	"github.com/hitoshi/booktab/internal/safety"
	"github.com/hitoshi/booktab/internal/session"
	"github.com/hitoshi/booktab/internal/storage"
	"github.com/hitoshi/booktab/internal/workflow"
)

// mockSource はSourceのモック。呼び出されたらdirにバックアップファイルを書き込む。
type mockSource struct {
	dir      string
	date     string
	err      error
	calls    int
	backupFn func(ctx context.Context) (string, error)
}

func (m *mockSource) Backup(ctx context.Context) (string, error) {
	m.calls++
	if m.backupFn != nil {
		return m.backupFn(ctx)
	}
	if m.err != nil {
		return "", m.err
	}
	name := backupPrefix + m.date + backupSuffix
	return name, os.WriteFile(filepath.Join(m.dir, name), []byte("{}"), 0o644)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func newTestJob(source Source, dir string, buf *bytes.Buffer) *Job {
	job := NewJob(source, dir, newTestLogger(buf))
	job.now = func() time.Time { return time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC) }
	return job
}

func TestNewJob_DefaultRetention(t *testing.T) {
	var buf bytes.Buffer
	job := NewJob(&mockSource{}, t.TempDir(), newTestLogger(&buf))
	if job.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", job.RetentionDays)
	}
}

func TestJob_Run_WritesBackupAndPrunes(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		"booktab-auto-2026-01-01.json",   // 古い: 削除
		"booktab-auto-2026-01-25.json",   // 古い: 削除
		"booktab-auto-2026-01-26.json",   // 保持期間内
		"booktab-backup-2026-01-01.json", // インポート前バックアップは対象外
		"booktab-export-2020-01-01.json", // エクスポートは対象外
		"notes.txt",
	)
	var buf bytes.Buffer
	source := &mockSource{dir: dir, date: "2026-02-25"}
	job := newTestJob(source, dir, &buf)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if source.calls != 1 {
		t.Errorf("Backup called %d times, want 1", source.calls)
	}

	want := []string{
		"booktab-auto-2026-01-26.json",
		"booktab-auto-2026-02-25.json",
		"booktab-backup-2026-01-01.json",
		"booktab-export-2020-01-01.json",
		"notes.txt",
	}
	got := listDir(t, dir)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("files = %v, want %v", got, want)
	}

	// 完了ログの検証
	var logEntry map[string]interface{}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &logEntry); err != nil {
		t.Fatalf("ログのパースに失敗: %v", err)
	}
	if logEntry["deleted_count"] != float64(2) {
		t.Errorf("deleted_count = %v, want 2", logEntry["deleted_count"])
	}
	if logEntry["filename"] != "booktab-auto-2026-02-25.json" {
		t.Errorf("filename = %v", logEntry["filename"])
	}
}

func TestJob_Run_SkipsWhenNotReady(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "booktab-auto-2025-01-01.json")
	var buf bytes.Buffer
	job := newTestJob(&mockSource{err: model.NewNotReadyError()}, dir, &buf)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run should not fail before the library is loaded: %v", err)
	}
	if len(listDir(t, dir)) != 1 {
		t.Error("prune should not run when the backup was skipped")
	}
}

func TestJob_Run_ReturnsBackupError(t *testing.T) {
	var buf bytes.Buffer
	job := newTestJob(&mockSource{err: errors.New("disk full")}, t.TempDir(), &buf)

	err := job.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Run() error = %v, want wrapped disk full", err)
	}
}

// importLibrary はtitleの本1冊だけのライブラリをインポートとして確定する。
func importLibrary(t *testing.T, sess *session.Session, title string) {
	t.Helper()
	data := model.DefaultData()
	data.Books["x1"] = model.BookRecord{
		ID: "x1", Title: title, Authors: []string{"George Eliot"}, Status: model.StatusRead,
		AddedAt: "2025-12-01T00:00:00.000Z", Tags: []string{},
	}
	content, err := safety.ExportToJSON(data)
	if err != nil {
		t.Fatalf("ExportToJSON: %v", err)
	}
	if _, err := sess.Navigate(workflow.ViewData{}); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if _, err := sess.SelectImportFile([]byte(content)); err != nil {
		t.Fatalf("SelectImportFile: %v", err)
	}
	if _, err := sess.ConfirmImport(context.Background()); err != nil {
		t.Fatalf("ConfirmImport: %v", err)
	}
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(b)
}

func TestJob_Run_KeepsPreImportBackup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	gw := storage.NewGateway(storage.NewMemoryStore())
	data := model.DefaultData()
	data.Books["b1"] = model.BookRecord{
		ID: "b1", Title: "Dune", Authors: []string{"Frank Herbert"}, Status: model.StatusReading,
		AddedAt: "2026-01-01T00:00:00.000Z", Tags: []string{},
	}
	if err := gw.Save(ctx, data); err != nil {
		t.Fatalf("Save: %v", err)
	}
	now := func() time.Time { return time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC) }
	sess := session.New(gw, safety.NewDirDownloader(dir), session.WithClock(now))
	if err := sess.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	importLibrary(t, sess, "Middlemarch")

	var buf bytes.Buffer
	job := newTestJob(sess, dir, &buf)
	for i := 0; i < 2; i++ {
		if err := job.Run(ctx); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}

	// 同じ日の2回目のインポートは別名で保存される
	importLibrary(t, sess, "Persuasion")

	want := []string{
		"booktab-auto-2026-02-25.json",
		"booktab-backup-2026-02-25-1.json",
		"booktab-backup-2026-02-25.json",
	}
	if got := listDir(t, dir); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("files = %v, want %v", got, want)
	}
	if content := readFile(t, dir, "booktab-backup-2026-02-25.json"); !strings.Contains(content, "Dune") {
		t.Errorf("pre-import backup lost the original library: %s", content)
	}
	if content := readFile(t, dir, "booktab-backup-2026-02-25-1.json"); !strings.Contains(content, "Middlemarch") {
		t.Errorf("second pre-import backup = %s", content)
	}
	if content := readFile(t, dir, "booktab-auto-2026-02-25.json"); !strings.Contains(content, "Middlemarch") {
		t.Errorf("scheduled backup = %s", content)
	}
}

func TestJob_Prune_MissingDirectory(t *testing.T) {
	var buf bytes.Buffer
	job := newTestJob(&mockSource{}, filepath.Join(t.TempDir(), "missing"), &buf)

	n, err := job.Prune()
	if err != nil || n != 0 {
		t.Errorf("Prune() = %d, %v; want 0, nil", n, err)
	}
}

func TestJob_Prune_DisabledRetention(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "booktab-auto-2000-01-01.json")
	var buf bytes.Buffer
	job := newTestJob(&mockSource{}, dir, &buf)
	job.RetentionDays = 0

	if n, err := job.Prune(); err != nil || n != 0 {
		t.Errorf("Prune() = %d, %v; want 0, nil", n, err)
	}
}

func TestJob_Start_RunsImmediatelyAndStops(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	ran := make(chan struct{}, 1)
	source := &mockSource{backupFn: func(context.Context) (string, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return "booktab-auto-2026-02-25.json", nil
	}}
	job := newTestJob(source, dir, &buf)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run on start")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not stop after cancel")
	}
}

func TestBackupDate(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"booktab-auto-2026-02-25.json", true},
		{"booktab-auto-2026-13-01.json", false},
		{"booktab-backup-2026-02-25.json", false},
		{"booktab-export-2026-02-25.json", false},
		{"booktab-auto-2026-02-25.json.tmp", false},
	}
	for _, tt := range tests {
		if _, ok := backupDate(tt.name); ok != tt.ok {
			t.Errorf("backupDate(%q) ok = %v, want %v", tt.name, ok, tt.ok)
		}
	}
}
