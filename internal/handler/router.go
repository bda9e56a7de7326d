package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/booktab/internal/metrics"
	"github.com/hitoshi/booktab/internal/middleware"
	"github.com/hitoshi/booktab/internal/security"
)

// SessionService はルーター全体が必要とするセッション操作。
// session.Sessionがこのインターフェースを満たす。
type SessionService interface {
	StateServiceInterface
	BookServiceInterface
	DataServiceInterface
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Session   SessionService
	Sanitizer security.TextSanitizer
	Pinger    Pinger

	// Events は状態通知のWebSocketエンドポイント。nilの場合は登録しない。
	Events http.Handler
	// Metrics は/metricsのハンドラー。nilの場合は登録しない。
	Metrics http.Handler

	// ミドルウェア依存
	Logger            *slog.Logger
	Collector         metrics.MetricsCollector
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → RateLimit(General) → RateLimit(Import)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Collector))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	stateHandler := NewStateHandler(deps.Session)
	bookHandler := NewBookHandler(deps.Session, sanitizer)
	dataHandler := NewDataHandler(deps.Session)

	// --- レート制限なしのルート ---
	if deps.Pinger != nil {
		r.Get("/health", Health(deps.Pinger))
	}
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	// --- API ---
	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		// 画面状態
		r.Get("/api/state", stateHandler.GetState)
		r.Post("/api/retry", stateHandler.Retry)
		r.Post("/api/navigation/{event}", stateHandler.Navigate)

		// 本の管理
		r.Route("/api/books", func(r chi.Router) {
			r.Get("/", bookHandler.ListBooks)
			r.Post("/", bookHandler.CreateBook)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", bookHandler.GetBook)
				r.Patch("/", bookHandler.UpdateBook)
				r.Delete("/", bookHandler.DeleteBook)
				r.Put("/status", bookHandler.ChangeStatus)
				r.Put("/note", bookHandler.SaveNote)
			})
		})

		// データ管理（ファイルを受け取る操作は専用のレート制限を追加）
		r.Route("/api/data", func(r chi.Router) {
			r.Get("/export", dataHandler.Export)

			r.Group(func(r chi.Router) {
				if deps.RateLimiter != nil {
					r.Use(deps.RateLimiter.ImportMiddleware())
				}
				r.Post("/import", dataHandler.SelectImport)
				r.Post("/shelf", dataHandler.ImportShelf)
			})
			r.Post("/import/confirm", dataHandler.ConfirmImport)
			r.Post("/import/cancel", dataHandler.CancelImport)
		})

		// 状態通知
		if deps.Events != nil {
			r.Handle("/api/events", deps.Events)
		}
	})

	return r
}
