package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/booktab/internal/library"
	"github.com/hitoshi/booktab/internal/model"
	"github.com/hitoshi/booktab/internal/safety"
	"github.com/hitoshi/booktab/internal/security"
	"github.com/hitoshi/booktab/internal/session"
	"github.com/hitoshi/booktab/internal/workflow"
)

// --- モック定義 ---

// mockSession はSessionServiceのモック実装。
type mockSession struct {
	snapshotFn         func() session.Snapshot
	retryFn            func(ctx context.Context) error
	navigateFn         func(ev workflow.Event) (session.Snapshot, error)
	booksFn            func() (model.BookCollection, error)
	bookFn             func(id string) (model.BookRecord, error)
	addBookFn          func(ctx context.Context, in model.BookInput) (model.BookRecord, error)
	editBookFn         func(ctx context.Context, id string, patch library.BookPatch) (model.BookRecord, error)
	deleteBookFn       func(ctx context.Context, id string) error
	changeStatusFn     func(ctx context.Context, id string, status model.BookStatus) (model.BookRecord, error)
	saveQueueNoteFn    func(ctx context.Context, id, note string) (model.BookRecord, error)
	exportFn           func(ctx context.Context) (session.ExportFile, error)
	selectImportFileFn func(content []byte) (safety.ImportPreview, error)
	confirmImportFn    func(ctx context.Context) (safety.ImportPreview, error)
	cancelImportFn     func() error
	importShelfFeedFn  func(ctx context.Context, content []byte) (session.ShelfImportResult, error)
}

func (m *mockSession) Snapshot() session.Snapshot {
	if m.snapshotFn != nil {
		return m.snapshotFn()
	}
	return session.Snapshot{State: workflow.State{Top: workflow.Ready, Sub: workflow.Viewing}}
}

func (m *mockSession) Retry(ctx context.Context) error {
	if m.retryFn != nil {
		return m.retryFn(ctx)
	}
	return nil
}

func (m *mockSession) Navigate(ev workflow.Event) (session.Snapshot, error) {
	if m.navigateFn != nil {
		return m.navigateFn(ev)
	}
	return m.Snapshot(), nil
}

func (m *mockSession) Books() (model.BookCollection, error) {
	if m.booksFn != nil {
		return m.booksFn()
	}
	return model.BookCollection{}, nil
}

func (m *mockSession) Book(id string) (model.BookRecord, error) {
	if m.bookFn != nil {
		return m.bookFn(id)
	}
	return model.BookRecord{}, model.NewBookNotFoundError(id)
}

func (m *mockSession) AddBook(ctx context.Context, in model.BookInput) (model.BookRecord, error) {
	if m.addBookFn != nil {
		return m.addBookFn(ctx, in)
	}
	return model.BookRecord{}, nil
}

func (m *mockSession) EditBook(ctx context.Context, id string, patch library.BookPatch) (model.BookRecord, error) {
	if m.editBookFn != nil {
		return m.editBookFn(ctx, id, patch)
	}
	return model.BookRecord{}, nil
}

func (m *mockSession) DeleteBook(ctx context.Context, id string) error {
	if m.deleteBookFn != nil {
		return m.deleteBookFn(ctx, id)
	}
	return nil
}

func (m *mockSession) ChangeStatus(ctx context.Context, id string, status model.BookStatus) (model.BookRecord, error) {
	if m.changeStatusFn != nil {
		return m.changeStatusFn(ctx, id, status)
	}
	return model.BookRecord{}, nil
}

func (m *mockSession) SaveQueueNote(ctx context.Context, id, note string) (model.BookRecord, error) {
	if m.saveQueueNoteFn != nil {
		return m.saveQueueNoteFn(ctx, id, note)
	}
	return model.BookRecord{}, nil
}

func (m *mockSession) Export(ctx context.Context) (session.ExportFile, error) {
	if m.exportFn != nil {
		return m.exportFn(ctx)
	}
	return session.ExportFile{}, nil
}

func (m *mockSession) SelectImportFile(content []byte) (safety.ImportPreview, error) {
	if m.selectImportFileFn != nil {
		return m.selectImportFileFn(content)
	}
	return safety.ImportPreview{}, nil
}

func (m *mockSession) ConfirmImport(ctx context.Context) (safety.ImportPreview, error) {
	if m.confirmImportFn != nil {
		return m.confirmImportFn(ctx)
	}
	return safety.ImportPreview{}, nil
}

func (m *mockSession) CancelImport() error {
	if m.cancelImportFn != nil {
		return m.cancelImportFn()
	}
	return nil
}

func (m *mockSession) ImportShelfFeed(ctx context.Context, content []byte) (session.ShelfImportResult, error) {
	if m.importShelfFeedFn != nil {
		return m.importShelfFeedFn(ctx, content)
	}
	return session.ShelfImportResult{}, nil
}

// mockPinger はPingerのモック実装。
type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error { return m.err }

// --- テストヘルパー ---

// newTestRouter はモックセッションを使ったルーターを生成する。
func newTestRouter(s *mockSession) http.Handler {
	return NewRouter(&RouterDeps{
		Session:   s,
		Sanitizer: security.NewTextSanitizer(),
		Pinger:    &mockPinger{},
	})
}

// doRequest はルーターにリクエストを送り、レスポンスを返す。
func doRequest(t *testing.T, h http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func sampleBook(id, title string, status model.BookStatus, addedAt string) model.BookRecord {
	return model.BookRecord{
		ID:      id,
		Title:   title,
		Authors: []string{"Author " + id},
		Status:  status,
		AddedAt: addedAt,
		Tags:    []string{},
	}
}
