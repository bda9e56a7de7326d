// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// BookStatus は本の読書状態を表す。
type BookStatus string

const (
	// StatusWantToRead は「読みたい」状態。キュー画面に表示される。
	StatusWantToRead BookStatus = "want_to_read"
	// StatusReading は「読書中」状態。
	StatusReading BookStatus = "reading"
	// StatusRead は「読了」状態。
	StatusRead BookStatus = "read"
)

// BookStatuses は有効な読書状態の一覧（表示順）。
var BookStatuses = []BookStatus{StatusWantToRead, StatusReading, StatusRead}

// IsValid は読書状態が定義済みの値かを返す。
func (s BookStatus) IsValid() bool {
	switch s {
	case StatusWantToRead, StatusReading, StatusRead:
		return true
	}
	return false
}

// timestampLayout はISO-8601（ミリ秒・UTC）のタイムスタンプ形式。
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp は時刻をISO-8601文字列（例: 2026-02-25T10:00:00.000Z）に変換する。
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// MaxPriority は優先度として保存できる絶対値の上限。
// エクスポートファイルを読むJavaScriptの安全な整数範囲（2^53-1）に合わせる。
const MaxPriority = 1<<53 - 1

// PriorityInRange は優先度が保存可能な範囲にあるかを返す。
func PriorityInRange(p int64) bool {
	return p >= -MaxPriority && p <= MaxPriority
}

// BookRecord は管理対象の1冊の本を表す。
// オプション項目はポインタで保持し、「未設定」と「空文字」を区別する。
type BookRecord struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Authors      []string   `json:"authors"`
	CoverURL     *string    `json:"coverUrl,omitempty"`
	ISBN         *string    `json:"isbn,omitempty"`
	ExternalID   *string    `json:"externalId,omitempty"`
	Status       BookStatus `json:"status"`
	AddedAt      string     `json:"addedAt"`
	StartedAt    *string    `json:"startedAt,omitempty"`
	FinishedAt   *string    `json:"finishedAt,omitempty"`
	Tags         []string   `json:"tags"`
	Priority     int        `json:"priority"`
	QueueNote    *string    `json:"queueNote,omitempty"`
	ReadingNotes *string    `json:"readingNotes,omitempty"`
	Review       *string    `json:"review,omitempty"`
}

// Clone はスライスとポインタを複製したコピーを返す。
// nilのauthors/tagsは空スライスに正規化する。
func (b BookRecord) Clone() BookRecord {
	out := b
	out.Authors = cloneStrings(b.Authors)
	out.Tags = cloneStrings(b.Tags)
	out.CoverURL = cloneString(b.CoverURL)
	out.ISBN = cloneString(b.ISBN)
	out.ExternalID = cloneString(b.ExternalID)
	out.StartedAt = cloneString(b.StartedAt)
	out.FinishedAt = cloneString(b.FinishedAt)
	out.QueueNote = cloneString(b.QueueNote)
	out.ReadingNotes = cloneString(b.ReadingNotes)
	out.Review = cloneString(b.Review)
	return out
}

// BookInput は新しい本を登録する際の最小入力。
type BookInput struct {
	Title      string
	Authors    []string
	CoverURL   string
	ISBN       string
	ExternalID string
	Status     BookStatus
}

// Normalize はフォーム入力を正規化する。
// タイトルと著者の前後空白を除去し、空の著者は取り除く。
func (in BookInput) Normalize() BookInput {
	out := in
	out.Title = strings.TrimSpace(in.Title)
	out.Authors = make([]string, 0, len(in.Authors))
	for _, a := range in.Authors {
		if a = strings.TrimSpace(a); a != "" {
			out.Authors = append(out.Authors, a)
		}
	}
	out.CoverURL = strings.TrimSpace(in.CoverURL)
	out.ISBN = strings.TrimSpace(in.ISBN)
	out.ExternalID = strings.TrimSpace(in.ExternalID)
	return out
}

// Validate は正規化済みの入力を検証する。
// タイトルと1人以上の著者が必須。
func (in BookInput) Validate() error {
	if in.Title == "" {
		return NewInvalidRequestError("タイトルを入力してください。")
	}
	if len(in.Authors) == 0 {
		return NewInvalidRequestError("著者を1人以上入力してください。")
	}
	if in.Status != "" && !in.Status.IsValid() {
		return NewInvalidStatusError(string(in.Status))
	}
	return nil
}

// ParseAuthors はカンマ区切りの著者文字列を著者リストに分解する。
func ParseAuthors(text string) []string {
	parts := strings.Split(text, ",")
	authors := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			authors = append(authors, p)
		}
	}
	return authors
}

// NewBookRecord は入力から新しいBookRecordを生成する。
// IDは新規のUUID、addedAtはnow、statusの既定値はwant_to_read、
// tagsは空、priorityは0に設定される。
func NewBookRecord(in BookInput, now time.Time) BookRecord {
	status := in.Status
	if status == "" {
		status = StatusWantToRead
	}
	authors := cloneStrings(in.Authors)
	return BookRecord{
		ID:         uuid.New().String(),
		Title:      in.Title,
		Authors:    authors,
		CoverURL:   optionalString(in.CoverURL),
		ISBN:       optionalString(in.ISBN),
		ExternalID: optionalString(in.ExternalID),
		Status:     status,
		AddedAt:    FormatTimestamp(now),
		Tags:       []string{},
		Priority:   0,
	}
}

// StringPtr は文字列のポインタを返す。
func StringPtr(s string) *string {
	return &s
}

// optionalString は空文字をnil（未設定）として扱う。
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneStrings(src []string) []string {
	out := make([]string, len(src))
	copy(out, src)
	return out
}
