package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/booktab/internal/library"
	"github.com/hitoshi/booktab/internal/model"
	"github.com/hitoshi/booktab/internal/query"
	"github.com/hitoshi/booktab/internal/security"
)

// BookServiceInterface は本の管理ハンドラーが必要とするセッション操作。
type BookServiceInterface interface {
	Books() (model.BookCollection, error)
	Book(id string) (model.BookRecord, error)
	AddBook(ctx context.Context, in model.BookInput) (model.BookRecord, error)
	EditBook(ctx context.Context, id string, patch library.BookPatch) (model.BookRecord, error)
	DeleteBook(ctx context.Context, id string) error
	ChangeStatus(ctx context.Context, id string, status model.BookStatus) (model.BookRecord, error)
	SaveQueueNote(ctx context.Context, id, note string) (model.BookRecord, error)
}

// BookHandler は本の管理のHTTPハンドラー。
// 自由記述の入力はすべてsanitizerでマークアップを除去してからセッションに渡す。
type BookHandler struct {
	service   BookServiceInterface
	sanitizer security.TextSanitizer
}

// NewBookHandler はBookHandlerを生成する。
func NewBookHandler(service BookServiceInterface, sanitizer security.TextSanitizer) *BookHandler {
	return &BookHandler{
		service:   service,
		sanitizer: sanitizer,
	}
}

// authorList は著者の入力。カンマ区切りの文字列と文字列配列のどちらも受け付ける。
type authorList []string

// UnmarshalJSON はフォームのカンマ区切り入力とJSON配列の両方をデコードする。
func (a *authorList) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*a = model.ParseAuthors(text)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*a = list
	return nil
}

// createBookRequest は本の登録リクエストのボディ。
type createBookRequest struct {
	Title    string           `json:"title"`
	Authors  authorList       `json:"authors"`
	CoverURL string           `json:"coverUrl"`
	ISBN     string           `json:"isbn"`
	Status   model.BookStatus `json:"status"`
}

type statusRequest struct {
	Status model.BookStatus `json:"status"`
}

type noteRequest struct {
	Note string `json:"note"`
}

// bookListResponse は本の一覧のAPIレスポンス。
type bookListResponse struct {
	Books  []model.BookRecord       `json:"books"`
	Count  int                      `json:"count"`
	Counts map[model.BookStatus]int `json:"counts"`
}

// ListBooks は本の一覧を返す。
// viewを指定した場合はその画面の一覧、whereを指定した場合はフィルタ式に一致する本だけを返す。
// GET /api/books?view=current|queue|history&where=<expr>
func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	view := model.DefaultView(r.URL.Query().Get("view"))
	if view != "" && !view.IsValid() {
		handleServiceError(w, model.NewInvalidRequestError("viewには current、queue、history のいずれかを指定してください。"))
		return
	}

	var filter *query.Filter
	if where := r.URL.Query().Get("where"); where != "" {
		f, err := query.Compile(where)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		filter = f
	}

	books, err := h.service.Books()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var list []model.BookRecord
	if view == "" {
		list = library.Sorted(books)
	} else {
		list = library.ForView(books, view)
	}

	list, err = filter.Apply(list)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookListResponse{
		Books:  list,
		Count:  len(list),
		Counts: library.CountByStatus(books),
	})
}

// CreateBook は本を登録する。
// POST /api/books
func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req createBookRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		handleServiceError(w, err)
		return
	}

	book, err := h.service.AddBook(r.Context(), model.BookInput{
		Title:    h.sanitizer.Sanitize(req.Title),
		Authors:  security.SanitizeAll(h.sanitizer, req.Authors),
		CoverURL: req.CoverURL,
		ISBN:     h.sanitizer.Sanitize(req.ISBN),
		Status:   req.Status,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, book)
}

// GetBook は本の詳細を返す。
// GET /api/books/{id}
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.service.Book(chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// UpdateBook は本を部分更新する。読書状態と日時はChangeStatusで変更する。
// PATCH /api/books/{id}
func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	var patch library.BookPatch
	if err := decodeJSON(w, r, &patch, false); err != nil {
		handleServiceError(w, err)
		return
	}

	book, err := h.service.EditBook(r.Context(), chi.URLParam(r, "id"), h.sanitizePatch(patch))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// DeleteBook は本を削除する。
// DELETE /api/books/{id}
func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteBook(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangeStatus は読書状態を変更する。
// PUT /api/books/{id}/status
func (h *BookHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		handleServiceError(w, err)
		return
	}

	book, err := h.service.ChangeStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// SaveNote はキューのメモを保存する。空文字はメモの削除。
// PUT /api/books/{id}/note
func (h *BookHandler) SaveNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		handleServiceError(w, err)
		return
	}

	book, err := h.service.SaveQueueNote(r.Context(), chi.URLParam(r, "id"), h.sanitizer.Sanitize(req.Note))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// sanitizePatch はパッチの自由記述項目からマークアップを除去する。
// URLと日時はセッション側で検証する。
func (h *BookHandler) sanitizePatch(p library.BookPatch) library.BookPatch {
	for _, field := range []*string{p.Title, p.ISBN, p.QueueNote, p.ReadingNotes, p.Review} {
		if field != nil {
			*field = h.sanitizer.Sanitize(*field)
		}
	}
	if p.Authors != nil {
		authors := security.SanitizeAll(h.sanitizer, *p.Authors)
		p.Authors = &authors
	}
	if p.Tags != nil {
		tags := security.SanitizeAll(h.sanitizer, *p.Tags)
		p.Tags = &tags
	}
	return p
}
