package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/booktab/internal/library"
	"github.com/hitoshi/booktab/internal/metrics"
	"github.com/hitoshi/booktab/internal/model"
	"github.com/hitoshi/booktab/internal/safety"
	"github.com/hitoshi/booktab/internal/workflow"
)

var errBackupDirUnset = errors.New("backup directory is not configured")

// ExportFile はエクスポートしたファイルの名前と内容。
type ExportFile struct {
	Filename string
	Content  string
}

// ShelfImportResult は本棚フィード取り込みの結果。
type ShelfImportResult struct {
	Added      []model.BookRecord
	Skipped    int
	Duplicates int
}

// Export は現在のデータをエクスポート形式に変換する。
func (s *Session) Export(ctx context.Context) (ExportFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireReady(); err != nil {
		return ExportFile{}, err
	}
	content, err := safety.ExportToJSON(s.currentData())
	if err != nil {
		return ExportFile{}, err
	}
	return ExportFile{Filename: safety.ExportFilename(s.now()), Content: content}, nil
}

// SelectImportFile はインポートファイルを検証し、確定待ちとして保持する。
// データ管理画面でのみ実行できる。検証に失敗した場合はIMPORT_INVALIDエラーを返し、
// ライブラリは変更しない。
func (s *Session) SelectImportFile(content []byte) (safety.ImportPreview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireDataScreen(); err != nil {
		return safety.ImportPreview{}, err
	}

	result := safety.ParseImportFile(content)
	if !result.OK() {
		s.pending = nil
		s.transition(workflow.ImportFailed{Error: result.Error})
		s.metrics.RecordImport(metrics.ImportInvalid)
		slog.Info("import file rejected", slog.String("reason", result.Error))
		return safety.ImportPreview{}, model.NewImportInvalidError(result.Error)
	}

	preview := result.Preview()
	s.pending = result.Data
	s.transition(workflow.ImportValidated{Preview: preview})
	s.metrics.RecordImport(metrics.ImportValidated)
	return preview, nil
}

// ConfirmImport は確定待ちのインポートを適用する。
// 先に現在のデータをバックアップとして書き出し、成功した場合のみコレクションを置き換える。
// バックアップに失敗した場合はBACKUP_FAILEDエラーを返し、何も変更しない。
func (s *Session) ConfirmImport(ctx context.Context) (safety.ImportPreview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireDataScreen(); err != nil {
		return safety.ImportPreview{}, err
	}
	if s.pending == nil {
		return safety.ImportPreview{}, model.NewNoPendingImportError()
	}

	if _, err := s.backup(ctx, safety.BackupFilename(s.now()), true); err != nil {
		s.metrics.RecordImport(metrics.ImportAborted)
		return safety.ImportPreview{}, err
	}

	imported := s.pending
	preview := safety.ImportPreview{BookCount: len(imported.Books)}
	s.settings = imported.Settings
	err := s.apply(ctx, library.ReplaceBooks{Books: imported.Books})
	s.pending = nil
	s.transition(workflow.ImportComplete{})
	s.metrics.RecordImport(metrics.ImportCommitted)

	slog.Info("import committed", slog.Int("book_count", preview.BookCount))
	return preview, err
}

// CancelImport は確定待ちのインポートを破棄する。
func (s *Session) CancelImport() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireDataScreen(); err != nil {
		return err
	}
	if s.pending == nil && s.machine.Context.ImportPreview == nil {
		return nil
	}
	s.pending = nil
	s.transition(workflow.ImportComplete{})
	s.metrics.RecordImport(metrics.ImportCancelled)
	return nil
}

// ImportShelfFeed は本棚フィードの本をまとめて追加し、1回だけ保存する。
// 既存の本と外部IDが一致するものは重複として追加しない。
func (s *Session) ImportShelfFeed(ctx context.Context, content []byte) (ShelfImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireReady(); err != nil {
		return ShelfImportResult{}, err
	}

	parsed, err := s.shelf.Parse(content)
	if err != nil {
		return ShelfImportResult{}, err
	}

	known := make(map[string]bool)
	for _, b := range s.store.Books() {
		if b.ExternalID != nil && *b.ExternalID != "" {
			known[*b.ExternalID] = true
		}
	}

	result := ShelfImportResult{Added: []model.BookRecord{}, Skipped: parsed.Skipped}
	cmds := make([]library.Command, 0, len(parsed.Entries))
	for _, entry := range parsed.Entries {
		if id := entry.Input.ExternalID; id != "" {
			if known[id] {
				result.Duplicates++
				continue
			}
			known[id] = true
		}
		record := model.NewBookRecord(entry.Input, s.now())
		record.Tags = append([]string{}, entry.Tags...)
		result.Added = append(result.Added, record)
		cmds = append(cmds, library.AddBook{Book: record})
	}

	err = s.apply(ctx, cmds...)
	s.metrics.RecordImport(metrics.ImportShelf)
	slog.Info("shelf feed imported",
		slog.String("feed", parsed.Title),
		slog.Int("added", len(result.Added)),
		slog.Int("skipped", result.Skipped),
		slog.Int("duplicates", result.Duplicates),
	)
	return result, err
}

// Backup は現在のデータを定期バックアップ（booktab-auto-DATE.json）として書き出し、ファイル名を返す。
// 同じ日の定期バックアップは上書きする。インポート前バックアップには触れない。
func (s *Session) Backup(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireReady(); err != nil {
		return "", err
	}
	return s.backup(ctx, safety.AutoBackupFilename(s.now()), false)
}

// backup は現在のデータをfilenameとして書き出し、実際のファイル名を返す。
// keepExistingの場合、DownloaderがExclusiveDownloaderであれば既存ファイルを上書きしない。
// 呼び出し元がロックを保持していること。
func (s *Session) backup(ctx context.Context, filename string, keepExisting bool) (string, error) {
	if s.downloader == nil {
		s.metrics.RecordBackup(false)
		return "", model.NewBackupFailedError(errBackupDirUnset)
	}
	content, err := safety.ExportToJSON(s.currentData())
	if err != nil {
		s.metrics.RecordBackup(false)
		return "", model.NewBackupFailedError(err)
	}

	name := filename
	if ex, ok := s.downloader.(safety.ExclusiveDownloader); ok && keepExisting {
		name, err = ex.DownloadNew(ctx, filename, content)
	} else {
		err = s.downloader.Download(ctx, filename, content)
	}
	if err != nil {
		s.metrics.RecordBackup(false)
		slog.Error("failed to write backup",
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
		return "", model.NewBackupFailedError(err)
	}
	s.metrics.RecordBackup(true)
	return name, nil
}

// requireDataScreen はデータ管理画面を開いているかを確認する。
func (s *Session) requireDataScreen() error {
	if err := s.requireReady(); err != nil {
		return err
	}
	if s.machine.State.Sub != workflow.ViewingData {
		return model.NewInvalidStateError(s.machine.State.String())
	}
	return nil
}
