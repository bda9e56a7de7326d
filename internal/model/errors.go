package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// Messageは利用者向けの日本語。内部エラーの詳細はcauseに保持し、レスポンスには含めない。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, library, data, system
	Action   string // ユーザー向け対処方法

	cause error
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因となった内部エラーを返す。
func (e *APIError) Unwrap() error {
	return e.cause
}

// 定義済みエラーコード
const (
	ErrCodeBookNotFound     = "BOOK_NOT_FOUND"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeInvalidStatus    = "INVALID_STATUS"
	ErrCodeInvalidFilter    = "INVALID_FILTER"
	ErrCodeInvalidURL       = "INVALID_URL"
	ErrCodeImportInvalid    = "IMPORT_INVALID"
	ErrCodeNoPendingImport  = "NO_PENDING_IMPORT"
	ErrCodeNotReady         = "NOT_READY"
	ErrCodeInvalidState     = "INVALID_STATE"
	ErrCodeSaveFailed       = "SAVE_FAILED"
	ErrCodeBackupFailed     = "BACKUP_FAILED"
	ErrCodeShelfParseFailed = "SHELF_PARSE_FAILED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewBookNotFoundError は本が見つからない場合のエラーを生成する。
func NewBookNotFoundError(bookID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookNotFound,
		Message:  fmt.Sprintf("指定された本が見つかりません: %s", bookID),
		Category: "library",
		Action:   "本のIDを確認してください。",
	}
}

// NewInvalidRequestError はリクエスト内容が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  reason,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidStatusError は読書状態が不正な場合のエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効な読書状態です: %s", status),
		Category: "validation",
		Action:   "読書状態には want_to_read、reading、read のいずれかを指定してください。",
	}
}

// NewInvalidFilterError はフィルタ式が不正な場合のエラーを生成する。
func NewInvalidFilterError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("無効なフィルタです: %s", reason),
		Category: "validation",
		Action:   `フィルタ式を確認してください（例: status == "reading" && "sf" in tags）。`,
	}
}

// NewInvalidURLError はカバー画像URLが不正な場合のエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "http:// または https:// で始まるURLを入力してください。",
	}
}

// NewImportInvalidError はインポートファイルの検証に失敗した場合のエラーを生成する。
// messageにはJSON構文エラーかスキーマ違反かを区別する説明が入る。
func NewImportInvalidError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeImportInvalid,
		Message:  message,
		Category: "data",
		Action:   "BookTabからエクスポートしたJSONファイルを選択してください。",
	}
}

// NewNoPendingImportError は確定対象のインポートが存在しない場合のエラーを生成する。
func NewNoPendingImportError() *APIError {
	return &APIError{
		Code:     ErrCodeNoPendingImport,
		Message:  "確定できるインポートがありません。",
		Category: "data",
		Action:   "先にインポートファイルを選択してください。",
	}
}

// NewNotReadyError はライブラリの読み込みが完了していない場合のエラーを生成する。
func NewNotReadyError() *APIError {
	return &APIError{
		Code:     ErrCodeNotReady,
		Message:  "ライブラリを読み込み中です。",
		Category: "system",
		Action:   "読み込みの完了を待つか、失敗した場合は再試行してください。",
	}
}

// NewInvalidStateError は現在の画面では実行できない操作のエラーを生成する。
func NewInvalidStateError(state string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  fmt.Sprintf("現在の画面（%s）ではこの操作を実行できません。", state),
		Category: "system",
		Action:   "データ管理画面を開いてから操作してください。",
	}
}

// NewSaveFailedError は保存に失敗した場合のエラーを生成する。
// 変更はメモリ上に保持されている。
func NewSaveFailedError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeSaveFailed,
		Message:  "ライブラリの保存に失敗しました。",
		cause:    cause,
		Category: "system",
		Action:   "変更は画面上に保持されています。ストレージの空き容量を確認してから再度お試しください。",
	}
}

// NewBackupFailedError はバックアップの書き出しに失敗した場合のエラーを生成する。
// インポート前のバックアップが失敗した場合、インポートは適用されない。
func NewBackupFailedError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeBackupFailed,
		Message:  "バックアップの作成に失敗しました。",
		Category: "data",
		Action:   "バックアップ先のディレクトリを確認してから再度お試しください。",
		cause:    cause,
	}
}

// NewShelfParseFailedError は本棚フィードの解析に失敗した場合のエラーを生成する。
func NewShelfParseFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeShelfParseFailed,
		Message:  fmt.Sprintf("本棚フィードの解析に失敗しました: %s", reason),
		Category: "data",
		Action:   "有効なRSS/Atom形式の本棚フィードかどうか確認してください。",
	}
}

// NewRateLimitedError はリクエスト数が上限を超えた場合のエラーを生成する。
func NewRateLimitedError(retryAfterSeconds int) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   fmt.Sprintf("%d秒待ってから再度お試しください。", retryAfterSeconds),
	}
}

// NewInternalError は想定外の内部エラーを表す。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
