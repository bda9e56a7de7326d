package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/booktab/internal/middleware"
	"github.com/hitoshi/booktab/internal/model"
)

// maxJSONBodyBytes はJSONリクエストボディの上限サイズ。
const maxJSONBodyBytes = 1 << 20

// maxFileBodyBytes はインポートファイル（エクスポートJSON、本棚フィード）の上限サイズ。
const maxFileBodyBytes = 5 << 20

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はJSONリクエストボディをデコードする。
// 空のボディはallowEmptyがtrueの場合のみ許可する。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return model.NewInvalidRequestError("リクエストボディの解析に失敗しました。正しいJSON形式で送信してください。")
	}
	return nil
}

// readFileBody はファイル内容として送信されたリクエストボディを読み込む。
func readFileBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFileBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, model.NewInvalidRequestError(fmt.Sprintf("ファイルは%dMB以内にしてください。", maxFileBodyBytes>>20))
		}
		return nil, model.NewInvalidRequestError("ファイルの読み込みに失敗しました。")
	}
	return body, nil
}

// handleServiceError はセッション層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteError(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeBookNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidStatus,
		model.ErrCodeInvalidFilter, model.ErrCodeInvalidURL:
		return http.StatusBadRequest
	case model.ErrCodeImportInvalid, model.ErrCodeShelfParseFailed:
		return http.StatusUnprocessableEntity
	case model.ErrCodeNoPendingImport, model.ErrCodeInvalidState:
		return http.StatusConflict
	case model.ErrCodeNotReady:
		return http.StatusServiceUnavailable
	case model.ErrCodeSaveFailed, model.ErrCodeBackupFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
