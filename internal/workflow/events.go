package workflow

import (
	"fmt"
	"strings"

	"github.com/hitoshi/booktab/internal/model"
	"github.com/hitoshi/booktab/internal/safety"
)

// Event はステートマシンに送るイベント。
type Event interface {
	// Type は "START_EDIT" のようなイベント名を返す。
	Type() string
}

type (
	// DataLoaded は読み込み完了またはデータ更新を通知する。
	DataLoaded struct{ Data *model.LibraryData }
	// DataFailed は読み込み失敗を通知する。
	DataFailed struct{ Error string }
	Retry      struct{}
	StartAdd   struct{}
	// StartEdit はBookIDの本の編集を開始する。
	StartEdit       struct{ BookID string }
	CancelForm      struct{}
	BookSaved       struct{}
	ViewQueue       struct{}
	BackToDashboard struct{}
	// EditNote はBookIDの本のキューメモ編集を開始する。
	EditNote   struct{ BookID string }
	NoteSaved  struct{}
	CancelNote struct{}
	ViewData   struct{}
	// ImportValidated は検証済みインポートの概要を通知する。
	ImportValidated  struct{ Preview safety.ImportPreview }
	ImportFailed     struct{ Error string }
	ImportComplete   struct{}
	ClearImportError struct{}
)

func (DataLoaded) Type() string       { return "DATA_LOADED" }
func (DataFailed) Type() string       { return "DATA_FAILED" }
func (Retry) Type() string            { return "RETRY" }
func (StartAdd) Type() string         { return "START_ADD" }
func (StartEdit) Type() string        { return "START_EDIT" }
func (CancelForm) Type() string       { return "CANCEL_FORM" }
func (BookSaved) Type() string        { return "BOOK_SAVED" }
func (ViewQueue) Type() string        { return "VIEW_QUEUE" }
func (BackToDashboard) Type() string  { return "BACK_TO_DASHBOARD" }
func (EditNote) Type() string         { return "EDIT_NOTE" }
func (NoteSaved) Type() string        { return "NOTE_SAVED" }
func (CancelNote) Type() string       { return "CANCEL_NOTE" }
func (ViewData) Type() string         { return "VIEW_DATA" }
func (ImportValidated) Type() string  { return "IMPORT_VALIDATED" }
func (ImportFailed) Type() string     { return "IMPORT_FAILED" }
func (ImportComplete) Type() string   { return "IMPORT_COMPLETE" }
func (ClearImportError) Type() string { return "CLEAR_IMPORT_ERROR" }

// EventFromName は画面操作のイベント名からEventを生成する。
// 名前は "start-edit" と "START_EDIT" のどちらの形式も受け付ける。
// 読み込み、保存、インポートの結果を表すイベントはオーケストレーション層だけが送るため、
// ここでは生成できない。
func EventFromName(name, bookID string) (Event, error) {
	switch strings.ToUpper(strings.ReplaceAll(name, "-", "_")) {
	case "START_ADD":
		return StartAdd{}, nil
	case "START_EDIT":
		if bookID == "" {
			return nil, model.NewInvalidRequestError("bookIdを指定してください。")
		}
		return StartEdit{BookID: bookID}, nil
	case "CANCEL_FORM":
		return CancelForm{}, nil
	case "VIEW_QUEUE":
		return ViewQueue{}, nil
	case "BACK_TO_DASHBOARD":
		return BackToDashboard{}, nil
	case "EDIT_NOTE":
		if bookID == "" {
			return nil, model.NewInvalidRequestError("bookIdを指定してください。")
		}
		return EditNote{BookID: bookID}, nil
	case "CANCEL_NOTE":
		return CancelNote{}, nil
	case "VIEW_DATA":
		return ViewData{}, nil
	case "CLEAR_IMPORT_ERROR":
		return ClearImportError{}, nil
	}
	return nil, model.NewInvalidRequestError(fmt.Sprintf("不明な画面操作です: %s", name))
}
