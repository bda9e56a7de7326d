// Package backup は定期バックアップジョブを提供する。
// 現在のライブラリをbooktab-auto-YYYY-MM-DD.jsonとして書き出し、
// 保持期間（デフォルト30日）を超過した定期バックアップを削除する。
// インポート前バックアップ（booktab-backup-*）は書き換えも削除もしない。
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hitoshi/booktab/internal/model"
)

const (
	backupPrefix = "booktab-auto-"
	backupSuffix = ".json"
	dateLayout   = "2006-01-02"
)

// Source はバックアップの書き出し元。session.Sessionが実装する。
type Source interface {
	Backup(ctx context.Context) (string, error)
}

// Job はバックアップの書き出しと古いファイルの削除を行うジョブ。
// 同じ日に複数回実行した場合は同名ファイルを上書きするため冪等。
type Job struct {
	source        Source
	dir           string
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int // バックアップの保持日数（デフォルト: 30）。0以下は削除しない
}

// NewJob は新しいJobを生成する。
// dirはSourceが書き出すディレクトリと同じものを指定する。
func NewJob(source Source, dir string, logger *slog.Logger) *Job {
	return &Job{
		source:        source,
		dir:           dir,
		logger:        logger,
		now:           time.Now,
		RetentionDays: 30,
	}
}

// Start は指定間隔でジョブを実行する。起動直後に1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("バックアップジョブを開始しました",
		slog.Duration("interval", interval),
		slog.String("dir", j.dir),
		slog.Int("retention_days", j.RetentionDays),
	)

	j.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("バックアップジョブを停止しました")
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *Job) runLogged(ctx context.Context) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("バックアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// Run はバックアップを1回書き出し、古いバックアップを削除する。
// ライブラリが読み込み前の場合は書き出しをスキップする。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()

	filename, err := j.source.Backup(ctx)
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeNotReady:
		j.logger.Info("ライブラリが読み込まれていないためバックアップをスキップしました")
		return nil
	case err != nil:
		return fmt.Errorf("バックアップの書き出しに失敗: %w", err)
	}

	deleted, err := j.Prune()
	if err != nil {
		return err
	}

	j.logger.Info("バックアップジョブが完了しました",
		slog.String("filename", filename),
		slog.Int("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Prune は保持期間を超過した定期バックアップファイルを削除し、削除件数を返す。
// ファイル名の日付で判定し、命名規則に合わないファイルには触れない。
// ディレクトリが存在しない場合は何もしない。
func (j *Job) Prune() (int, error) {
	if j.RetentionDays <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(j.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("バックアップディレクトリの読み込みに失敗: %w", err)
	}

	cutoff := j.now().UTC().AddDate(0, 0, -j.RetentionDays).Truncate(24 * time.Hour)
	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		date, ok := backupDate(entry.Name())
		if !ok || !date.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, entry.Name())); err != nil {
			return deleted, fmt.Errorf("バックアップファイルの削除に失敗: %w", err)
		}
		deleted++
	}
	return deleted, nil
}

// backupDate はbooktab-auto-YYYY-MM-DD.jsonから日付を取り出す。
func backupDate(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupSuffix)
	date, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}
