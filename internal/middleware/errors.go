package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/booktab/internal/model"
)

// ErrorBody はエラーレスポンスのJSON表現。
// 画面側はcodeで分岐し、messageとactionをそのまま表示する。
type ErrorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

func newErrorBody(e *model.APIError) ErrorBody {
	return ErrorBody{
		Code:     e.Code,
		Message:  e.Message,
		Category: e.Category,
		Action:   e.Action,
	}
}

// WriteError はapiErrをstatusのJSONレスポンスとして書き込む。
// apiErrがnilの場合はINTERNAL_ERRORとして扱う。
func WriteError(w http.ResponseWriter, status int, apiErr *model.APIError) {
	if apiErr == nil {
		apiErr = model.NewInternalError()
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(newErrorBody(apiErr)); err != nil {
		slog.Debug("failed to write error response", slog.String("error", err.Error()))
	}
}

// WriteInternalError は500 INTERNAL_ERRORを書き込む。
func WriteInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, model.NewInternalError())
}
