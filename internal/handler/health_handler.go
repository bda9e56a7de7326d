package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger はストレージへの疎通確認を行う。
type Pinger interface {
	Ping(ctx context.Context) error
}

// healthTimeout はヘルスチェックでストレージの応答を待つ上限。
const healthTimeout = 3 * time.Second

// Health はストレージに疎通できる場合に200を返す。
// GET /health
func Health(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := pinger.Ping(ctx); err != nil {
			slog.Warn("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
