// Package safety はエクスポート、インポートファイルの検証、バックアップファイル名の生成を提供する。
package safety

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/booktab/internal/model"
	"github.com/hitoshi/booktab/internal/schema"
)

// インポート失敗時のメッセージ。JSON構文エラーとスキーマ違反を区別する。
const (
	MessageInvalidJSON  = "Invalid JSON: the file is not valid JSON."
	messageInvalidShape = "Invalid BookTab data: "
)

// ExportToJSON はLibraryData全体を2スペースインデントのJSONに変換する。
// マップのキーはソートされるため、同じデータからは常に同じ出力が得られる。
func ExportToJSON(data *model.LibraryData) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return "", fmt.Errorf("failed to export data: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// ImportResult はインポートファイルの解析結果。
// 成功時はDataが設定され、失敗時はErrorに利用者向けのメッセージが入る。
type ImportResult struct {
	Data  *model.LibraryData
	Error string
}

// OK は解析に成功したかを返す。
func (r ImportResult) OK() bool {
	return r.Data != nil && r.Error == ""
}

// Preview はインポート確認画面に表示する概要を返す。
func (r ImportResult) Preview() ImportPreview {
	if r.Data == nil {
		return ImportPreview{}
	}
	return ImportPreview{BookCount: len(r.Data.Books)}
}

// ImportPreview はインポート前に表示する概要。
type ImportPreview struct {
	BookCount int `json:"bookCount"`
}

// ParseImportFile はインポートファイルの内容を解析し、スキーマ検証を行う。
// 不正なJSONの場合とスキーマ違反の場合でメッセージが異なる。
func ParseImportFile(content []byte) ImportResult {
	res, err := schema.ValidateJSON(content)
	if err != nil {
		return ImportResult{Error: MessageInvalidJSON}
	}
	if !res.OK() {
		return ImportResult{Error: messageInvalidShape + res.Issues.Error()}
	}
	return ImportResult{Data: res.Data}
}

// ExportFilename はエクスポートファイル名を返す（例: booktab-export-2026-02-25.json）。
func ExportFilename(now time.Time) string {
	return "booktab-export-" + dateString(now) + ".json"
}

// BackupFilename はインポート前バックアップのファイル名を返す（例: booktab-backup-2026-02-25.json）。
func BackupFilename(now time.Time) string {
	return "booktab-backup-" + dateString(now) + ".json"
}

// AutoBackupFilename は定期バックアップのファイル名を返す（例: booktab-auto-2026-02-25.json）。
// インポート前バックアップとは別名にし、定期バックアップが上書きや削除をしないようにする。
func AutoBackupFilename(now time.Time) string {
	return "booktab-auto-" + dateString(now) + ".json"
}

// dateString はUTCの暦日をYYYY-MM-DD形式で返す。
func dateString(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}
