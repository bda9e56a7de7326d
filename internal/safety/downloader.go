package safety

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxRenameAttempts は同名ファイルを避けるために試す連番の上限。
const maxRenameAttempts = 100

// Downloader はエクスポート済みの内容をファイルとして利用者に渡す。
type Downloader interface {
	Download(ctx context.Context, filename string, content string) error
}

// DownloaderFunc は関数をDownloaderとして扱うためのアダプタ。
type DownloaderFunc func(ctx context.Context, filename string, content string) error

// Download はf(ctx, filename, content)を呼び出す。
func (f DownloaderFunc) Download(ctx context.Context, filename string, content string) error {
	return f(ctx, filename, content)
}

// ExclusiveDownloader は既存ファイルを上書きせずに書き出せるDownloader。
// ブラウザのダウンロードと同様に、同名ファイルがあれば別名で保存して実際のファイル名を返す。
type ExclusiveDownloader interface {
	Downloader
	DownloadNew(ctx context.Context, filename string, content string) (string, error)
}

// DirDownloader は指定ディレクトリにファイルを書き出すDownloader。
// 一時ファイルに書いてからリネームするため、途中で失敗しても既存ファイルは壊れない。
type DirDownloader struct {
	Dir string
}

// NewDirDownloader はDirDownloaderを生成する。
func NewDirDownloader(dir string) *DirDownloader {
	return &DirDownloader{Dir: dir}
}

// Download はDir/filenameにcontentを書き込む。同名ファイルは置き換える。
func (d *DirDownloader) Download(ctx context.Context, filename string, content string) error {
	tmp, err := d.writeTemp(ctx, filename, content)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := os.Rename(tmp, filepath.Join(d.Dir, filename)); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}

// DownloadNew はDir/filenameにcontentを書き込み、実際のファイル名を返す。
// 同名ファイルがある場合は拡張子の前に-1, -2...を付けた名前で保存する。
func (d *DirDownloader) DownloadNew(ctx context.Context, filename string, content string) (string, error) {
	tmp, err := d.writeTemp(ctx, filename, content)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp)

	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	name := filename
	for i := 1; i <= maxRenameAttempts; i++ {
		// O_EXCLで名前を確保してから置き換える
		f, err := os.OpenFile(filepath.Join(d.Dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			name = fmt.Sprintf("%s-%d%s", base, i, ext)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to write %s: %w", name, err)
		}
		f.Close()
		if err := os.Rename(tmp, filepath.Join(d.Dir, name)); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", name, err)
		}
		return name, nil
	}
	return "", fmt.Errorf("failed to write %s: too many files with the same name", filename)
}

// writeTemp はDir内の一時ファイルにcontentを書き込み、そのパスを返す。
func (d *DirDownloader) writeTemp(ctx context.Context, filename string, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if filename != filepath.Base(filename) {
		return "", fmt.Errorf("invalid filename: %q", filename)
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(d.Dir, "."+filename+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return tmp.Name(), nil
}
