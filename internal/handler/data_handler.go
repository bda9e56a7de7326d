package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/booktab/internal/model"
	"github.com/hitoshi/booktab/internal/safety"
	"github.com/hitoshi/booktab/internal/session"
)

// DataServiceInterface はデータ管理ハンドラーが必要とするセッション操作。
type DataServiceInterface interface {
	Snapshot() session.Snapshot
	Export(ctx context.Context) (session.ExportFile, error)
	SelectImportFile(content []byte) (safety.ImportPreview, error)
	ConfirmImport(ctx context.Context) (safety.ImportPreview, error)
	CancelImport() error
	ImportShelfFeed(ctx context.Context, content []byte) (session.ShelfImportResult, error)
}

// DataHandler はエクスポート、インポート、本棚フィード取り込みのHTTPハンドラー。
type DataHandler struct {
	service DataServiceInterface
}

// NewDataHandler はDataHandlerを生成する。
func NewDataHandler(service DataServiceInterface) *DataHandler {
	return &DataHandler{service: service}
}

// importPreviewResponse はインポート確認画面に表示する内容。
type importPreviewResponse struct {
	BookCount        int `json:"bookCount"`
	CurrentBookCount int `json:"currentBookCount"`
}

// shelfImportResponse は本棚フィード取り込みの結果。
type shelfImportResponse struct {
	Added      []model.BookRecord `json:"added"`
	AddedCount int                `json:"addedCount"`
	Skipped    int                `json:"skipped"`
	Duplicates int                `json:"duplicates"`
}

// Export は現在のライブラリをJSONファイルとしてダウンロードさせる。
// GET /api/data/export
func (h *DataHandler) Export(w http.ResponseWriter, r *http.Request) {
	file, err := h.service.Export(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(file.Content))
}

// SelectImport はインポートファイルを検証し、確認待ちにする。
// リクエストボディにはファイルの内容をそのまま送信する。
// POST /api/data/import
func (h *DataHandler) SelectImport(w http.ResponseWriter, r *http.Request) {
	body, err := readFileBody(w, r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	preview, err := h.service.SelectImportFile(body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, importPreviewResponse{
		BookCount:        preview.BookCount,
		CurrentBookCount: h.service.Snapshot().BookCount,
	})
}

// ConfirmImport はバックアップを書き出したうえで、確認待ちのインポートを確定する。
// POST /api/data/import/confirm
func (h *DataHandler) ConfirmImport(w http.ResponseWriter, r *http.Request) {
	preview, err := h.service.ConfirmImport(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, importPreviewResponse{
		BookCount:        preview.BookCount,
		CurrentBookCount: h.service.Snapshot().BookCount,
	})
}

// CancelImport は確認待ちのインポートを破棄する。
// POST /api/data/import/cancel
func (h *DataHandler) CancelImport(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CancelImport(); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStateResponse(h.service.Snapshot()))
}

// ImportShelf は本棚フィード（RSS/Atom）から本を取り込む。
// POST /api/data/shelf
func (h *DataHandler) ImportShelf(w http.ResponseWriter, r *http.Request) {
	body, err := readFileBody(w, r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.service.ImportShelfFeed(r.Context(), body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	added := result.Added
	if added == nil {
		added = []model.BookRecord{}
	}
	writeJSON(w, http.StatusOK, shelfImportResponse{
		Added:      added,
		AddedCount: len(added),
		Skipped:    result.Skipped,
		Duplicates: result.Duplicates,
	})
}
