// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// ストレージドライバ名（STORAGE_DRIVERの値）。
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMySQL    = "mysql"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Storage
	StorageDriver string
	DatabaseURL   string
	SQLitePath    string
	SaveTimeout   time.Duration

	// Backup
	BackupDir           string
	BackupInterval      time.Duration
	BackupRetentionDays int

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int
	RateLimitImport  int

	// Logging
	LogLevel string

	// Server
	ServerPort      string
	BindAddress     string
	ShutdownTimeout time.Duration

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// ストレージドライバが不正な場合、または必須環境変数が未設定の場合はエラーを返す。
// 数値・期間の値が不正な場合はデフォルト値を使用する。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.StorageDriver = strings.ToLower(getEnvString("STORAGE_DRIVER", StorageSQLite))
	switch cfg.StorageDriver {
	case StorageMemory, StorageSQLite, StoragePostgres, StorageMySQL:
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER: %q (memory, sqlite, postgres, mysql)", cfg.StorageDriver)
	}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && (cfg.StorageDriver == StoragePostgres || cfg.StorageDriver == StorageMySQL) {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SQLitePath = getEnvString("SQLITE_PATH", "booktab.db")
	cfg.SaveTimeout = getEnvDuration("SAVE_TIMEOUT", 5*time.Second)
	cfg.BackupDir = getEnvString("BACKUP_DIR", "backups")
	cfg.BackupInterval = getEnvDuration("BACKUP_INTERVAL", 24*time.Hour)
	cfg.BackupRetentionDays = getEnvInt("BACKUP_RETENTION_DAYS", 30)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 240)
	cfg.RateLimitImport = getEnvInt("RATE_LIMIT_IMPORT", 10)
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	cfg.ServerPort = getEnvString("SERVER_PORT", "8787")
	cfg.BindAddress = getEnvString("BIND_ADDRESS", "127.0.0.1")
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")

	return cfg, nil
}

// Addr はHTTPサーバーの待ち受けアドレスを返す。
func (c *Config) Addr() string {
	return net.JoinHostPort(c.BindAddress, c.ServerPort)
}

// DSN はストレージドライバに対応する接続文字列を返す。
// SQLiteの場合はファイルパス、memoryの場合は空文字。
func (c *Config) DSN() string {
	switch c.StorageDriver {
	case StorageSQLite:
		return c.SQLitePath
	case StoragePostgres, StorageMySQL:
		return c.DatabaseURL
	default:
		return ""
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
