package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/term"

	"github.com/hitoshi/booktab/internal/config"
	"github.com/hitoshi/booktab/internal/database"
	"github.com/hitoshi/booktab/internal/events"
	"github.com/hitoshi/booktab/internal/handler"
	"github.com/hitoshi/booktab/internal/logger"
	"github.com/hitoshi/booktab/internal/metrics"
	"github.com/hitoshi/booktab/internal/middleware"
	"github.com/hitoshi/booktab/internal/safety"
	"github.com/hitoshi/booktab/internal/security"
	"github.com/hitoshi/booktab/internal/session"
	"github.com/hitoshi/booktab/internal/shelf"
	"github.com/hitoshi/booktab/internal/storage"
	"github.com/hitoshi/booktab/internal/worker/backup"
	"github.com/hitoshi/booktab/internal/workflow"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

// runWithConfig は初期化を行ってからサブコマンドの処理を実行する。
func runWithConfig(w io.Writer, cmd Command, fn func(*config.Config) error) error {
	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("storage_driver", cfg.StorageDriver),
	)

	return fn(cfg)
}

// runServe はAPIサーバーモードで起動する。
// ストレージを開いてライブラリを読み込み、全依存関係をワイヤリングしてHTTPサーバーを起動する。
// SIGINT、SIGTERMの受信またはctxのキャンセルでグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 1. ストレージ
	gateway, closeStore, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// 2. メトリクスと状態通知
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	hub := events.NewHub(cfg.CORSAllowedOrigin)
	go hub.Run(ctx)

	// 3. セッション
	sanitizer := security.NewTextSanitizer()
	sess := newSession(cfg, gateway,
		session.WithMetrics(collector),
		session.WithNotifier(hub),
		session.WithShelfParser(shelf.NewParser(sanitizer)),
	)
	if err := sess.Load(ctx); err != nil {
		// error状態のまま起動し、/api/retryでの再読み込みを待つ
		slog.Error("failed to load library", slog.String("error", err.Error()))
	}

	// 4. バックアップジョブ
	if cfg.BackupInterval > 0 {
		job := backup.NewJob(sess, cfg.BackupDir, slog.Default())
		job.RetentionDays = cfg.BackupRetentionDays
		go job.Start(ctx, cfg.BackupInterval)
	}

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitImport),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Session:           sess,
		Sanitizer:         sanitizer,
		Pinger:            gateway,
		Events:            http.HandlerFunc(hub.ServeWS),
		Metrics:           metrics.Handler(reg),
		Logger:            slog.Default(),
		Collector:         collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-listenErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。memoryドライバでは何もしない。
func runMigrate(cfg *config.Config) error {
	driver, ok := sqlDriver(cfg.StorageDriver)
	if !ok {
		slog.Info("storage driver has no migrations", slog.String("storage_driver", cfg.StorageDriver))
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database", describeDSN(cfg)),
	)

	if err := database.RunMigrations(driver, cfg.DSN()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runExport はライブラリをエクスポート形式で書き出す。
// outputが空の場合、outが端末ならエクスポートファイル名で保存し、そうでなければoutに書き出す。
// outputが"-"の場合は常にoutに書き出す。
func runExport(ctx context.Context, cfg *config.Config, out io.Writer, output string) error {
	sess, closeStore, err := loadSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	file, err := sess.Export(ctx)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	dest := output
	if dest == "" {
		dest = "-"
		if isTerminal(out) {
			dest = file.Filename
		}
	}

	if dest == "-" {
		_, err := io.WriteString(out, file.Content)
		return err
	}
	if err := os.WriteFile(dest, []byte(file.Content), 0o600); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	slog.Info("library exported", slog.String("path", dest))
	fmt.Fprintf(out, "%s に書き出しました\n", dest)
	return nil
}

// runImport はエクスポートファイルでライブラリを置き換える。
// yesがfalseの場合はinから確認の応答を読み、y/yes以外なら中止する。
func runImport(ctx context.Context, cfg *config.Config, path string, yes bool, in io.Reader, out io.Writer) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}

	sess, closeStore, err := loadSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if _, err := sess.Navigate(workflow.ViewData{}); err != nil {
		return err
	}
	preview, err := sess.SelectImportFile(content)
	if err != nil {
		return fmt.Errorf("import rejected: %w", err)
	}

	fmt.Fprintf(out, "現在の%d冊を%sの%d冊で置き換えます。\n",
		sess.Snapshot().BookCount, path, preview.BookCount)

	if !yes && !confirm(in, out) {
		if err := sess.CancelImport(); err != nil {
			return err
		}
		fmt.Fprintln(out, "インポートを中止しました。")
		return nil
	}

	if _, err := sess.ConfirmImport(ctx); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	fmt.Fprintf(out, "%d冊をインポートしました。\n", preview.BookCount)
	return nil
}

// runBackup はバックアップを1回書き出し、保持期間を過ぎたファイルを削除する。
func runBackup(ctx context.Context, cfg *config.Config) error {
	sess, closeStore, err := loadSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	job := backup.NewJob(sess, cfg.BackupDir, slog.Default())
	job.RetentionDays = cfg.BackupRetentionDays
	return job.Run(ctx)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(addr string) error {
	url := fmt.Sprintf("http://%s/health", addr)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// healthcheckAddr は設定を読み込まずにヘルスチェック先のアドレスを決める。
func healthcheckAddr() string {
	host := os.Getenv("BIND_ADDRESS")
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8787"
	}
	return net.JoinHostPort(host, port)
}

// openGateway は設定に応じたストレージを開く。
// SQLドライバの場合は未適用のマイグレーションを適用してから接続する。
// 戻り値の関数で接続を閉じる。
func openGateway(ctx context.Context, cfg *config.Config) (*storage.Gateway, func(), error) {
	driver, ok := sqlDriver(cfg.StorageDriver)
	if !ok {
		slog.Info("using in-memory storage; data is lost on exit")
		return storage.NewGateway(storage.NewMemoryStore()), func() {}, nil
	}

	if err := database.RunMigrations(driver, cfg.DSN()); err != nil {
		return nil, nil, fmt.Errorf("migration failed: %w", err)
	}

	db, err := database.Open(driver, cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store, err := storage.NewSQLStore(db, driver)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	slog.Info("database connection established", slog.String("database", describeDSN(cfg)))
	return storage.NewGateway(store), func() { db.Close() }, nil
}

// loadSession はストレージを開き、ライブラリを読み込んだSessionを返す。
func loadSession(ctx context.Context, cfg *config.Config) (*session.Session, func(), error) {
	gateway, closeStore, err := openGateway(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	sess := newSession(cfg, gateway)
	if err := sess.Load(ctx); err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("failed to load library: %w", err)
	}
	return sess, closeStore, nil
}

// newSession は設定の保存タイムアウトとバックアップ先を適用したSessionを生成する。
func newSession(cfg *config.Config, gateway session.Gateway, opts ...session.Option) *session.Session {
	opts = append([]session.Option{session.WithSaveTimeout(cfg.SaveTimeout)}, opts...)
	return session.New(gateway, safety.NewDirDownloader(cfg.BackupDir), opts...)
}

// sqlDriver はSTORAGE_DRIVERの値をdatabaseパッケージのドライバ名に変換する。
func sqlDriver(storageDriver string) (string, bool) {
	switch storageDriver {
	case config.StorageSQLite:
		return database.DriverSQLite, true
	case config.StoragePostgres:
		return database.DriverPostgres, true
	case config.StorageMySQL:
		return database.DriverMySQL, true
	default:
		return "", false
	}
}

// describeDSN はログ出力用の接続先表記を返す。
func describeDSN(cfg *config.Config) string {
	if cfg.StorageDriver == config.StorageSQLite {
		return cfg.SQLitePath
	}
	return maskDatabaseURL(cfg.DatabaseURL)
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

// confirm はinから1行読み、y/yesであればtrueを返す。
func confirm(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "続行しますか？ [y/N]: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// isTerminal はwが端末に接続されたファイルかを返す。
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
