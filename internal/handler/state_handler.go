package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/booktab/internal/model"
	"github.com/hitoshi/booktab/internal/safety"
	"github.com/hitoshi/booktab/internal/session"
	"github.com/hitoshi/booktab/internal/workflow"
)

// StateServiceInterface は画面状態ハンドラーが必要とするセッション操作。
type StateServiceInterface interface {
	// Snapshot は現在の画面状態のコピーを返す。
	Snapshot() session.Snapshot
	// Retry は読み込み失敗後にデータを再読み込みする。
	Retry(ctx context.Context) error
	// Navigate は画面遷移イベントを適用する。
	Navigate(ev workflow.Event) (session.Snapshot, error)
}

// StateHandler は画面状態と画面遷移のHTTPハンドラー。
type StateHandler struct {
	service StateServiceInterface
}

// NewStateHandler はStateHandlerを生成する。
func NewStateHandler(service StateServiceInterface) *StateHandler {
	return &StateHandler{service: service}
}

// stateResponse は画面状態のAPIレスポンス。
type stateResponse struct {
	State       string               `json:"state"`
	Context     stateContextResponse `json:"context"`
	BookCount   int                  `json:"bookCount"`
	DefaultView model.DefaultView    `json:"defaultView,omitempty"`
}

// stateContextResponse はステートマシンの付随データ。未設定の項目はnullになる。
type stateContextResponse struct {
	Error             *string               `json:"error"`
	EditingBookID     *string               `json:"editingBookId"`
	EditingNoteBookID *string               `json:"editingNoteBookId"`
	ImportError       *string               `json:"importError"`
	ImportPreview     *safety.ImportPreview `json:"importPreview"`
}

// navigationRequest は画面遷移リクエストのボディ。
type navigationRequest struct {
	BookID string `json:"bookId"`
}

// GetState は現在の画面状態を返す。
// GET /api/state
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStateResponse(h.service.Snapshot()))
}

// Retry は読み込みを再試行する。
// 読み込みに失敗した場合もerror状態のスナップショットを返す。
// POST /api/retry
func (h *StateHandler) Retry(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Retry(r.Context()); err != nil {
		slog.Warn("retry load failed", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, toStateResponse(h.service.Snapshot()))
}

// Navigate は画面遷移イベントを適用する。
// POST /api/navigation/{event}
func (h *StateHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req navigationRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		handleServiceError(w, err)
		return
	}

	ev, err := workflow.EventFromName(chi.URLParam(r, "event"), req.BookID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	snap, err := h.service.Navigate(ev)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStateResponse(snap))
}

// toStateResponse はセッションのスナップショットをAPIレスポンスに変換する。
func toStateResponse(snap session.Snapshot) stateResponse {
	resp := stateResponse{
		State: snap.State.String(),
		Context: stateContextResponse{
			Error:             snap.Context.Error,
			EditingBookID:     snap.Context.EditingBookID,
			EditingNoteBookID: snap.Context.EditingNoteBookID,
			ImportError:       snap.Context.ImportError,
			ImportPreview:     snap.Context.ImportPreview,
		},
		BookCount: snap.BookCount,
	}
	if snap.Context.Data != nil {
		resp.DefaultView = snap.Context.Data.Settings.DefaultView
	}
	return resp
}
