// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// セッション、バックアップワーカー、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordCommand(command string, saveNeeded bool)
	RecordLoad(success bool)
	RecordSave(success bool, duration time.Duration)
	RecordImport(outcome string)
	RecordBackup(success bool)
	RecordHTTPStatus(statusCode int)
	SetBookCounts(counts map[string]int)
}

// インポート結果のラベル値。
const (
	ImportValidated = "validated"
	ImportInvalid   = "invalid"
	ImportCommitted = "committed"
	ImportAborted   = "aborted"
	ImportCancelled = "cancelled"
	ImportShelf     = "shelf"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	commands    *prometheus.CounterVec
	loads       *prometheus.CounterVec
	saves       *prometheus.CounterVec
	saveLatency prometheus.Histogram
	imports     *prometheus.CounterVec
	backups     *prometheus.CounterVec
	httpStatus  *prometheus.CounterVec
	books       *prometheus.GaugeVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booktab_commands_total",
			Help: "ライブラリに適用したコマンドの合計数",
		}, []string{"command", "result"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booktab_loads_total",
			Help: "データ読み込みの合計数",
		}, []string{"result"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booktab_saves_total",
			Help: "データ保存の合計数",
		}, []string{"result"}),
		saveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "booktab_save_latency_seconds",
			Help:    "データ保存のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booktab_imports_total",
			Help: "インポート操作の結果別の合計数",
		}, []string{"outcome"}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booktab_backups_total",
			Help: "バックアップファイル書き出しの合計数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booktab_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		books: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "booktab_books",
			Help: "読書状態別の冊数",
		}, []string{"status"}),
	}

	reg.MustRegister(
		c.commands,
		c.loads,
		c.saves,
		c.saveLatency,
		c.imports,
		c.backups,
		c.httpStatus,
		c.books,
	)

	return c
}

// RecordCommand はコマンドの適用を記録する。保存不要（no-op）の場合はresult="noop"。
func (c *Collector) RecordCommand(command string, saveNeeded bool) {
	result := "applied"
	if !saveNeeded {
		result = "noop"
	}
	c.commands.WithLabelValues(command, result).Inc()
}

// RecordLoad はデータ読み込みの結果を記録する。
func (c *Collector) RecordLoad(success bool) {
	c.loads.WithLabelValues(resultLabel(success)).Inc()
}

// RecordSave はデータ保存の結果とレイテンシを記録する。
func (c *Collector) RecordSave(success bool, duration time.Duration) {
	c.saves.WithLabelValues(resultLabel(success)).Inc()
	c.saveLatency.Observe(duration.Seconds())
}

// RecordImport はインポート操作の結果を記録する。
func (c *Collector) RecordImport(outcome string) {
	c.imports.WithLabelValues(outcome).Inc()
}

// RecordBackup はバックアップの結果を記録する。
func (c *Collector) RecordBackup(success bool) {
	c.backups.WithLabelValues(resultLabel(success)).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// SetBookCounts は読書状態別の冊数を設定する。
func (c *Collector) SetBookCounts(counts map[string]int) {
	for status, n := range counts {
		c.books.WithLabelValues(status).Set(float64(n))
	}
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
