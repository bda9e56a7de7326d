package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

var (
	corsAllowedMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsMaxAge = strconv.Itoa(24 * 60 * 60)
)

// NewCORSMiddleware はallowedOriginからのクロスオリジン呼び出しを許可するミドルウェアを返す。
// ブラウザ拡張の新しいタブなど、APIと別オリジンの画面から使う場合に設定する。
//
// CORSヘッダーはOriginがallowedOriginと一致するリクエストにだけ付与する。
// allowedOriginが空の場合は同一オリジンのみとなる。
// プリフライト（Access-Control-Request-Methodを伴うOPTIONS）は次のハンドラーに渡さず204で応答する。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			allowed := allowedOrigin != "" && origin == allowedOrigin
			if allowed {
				h.Set("Access-Control-Allow-Origin", origin)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowed {
					h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
					h.Set("Access-Control-Allow-Headers", "Content-Type")
					h.Set("Access-Control-Max-Age", corsMaxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
