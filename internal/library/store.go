// Package library は本のコレクションを所有し、変更コマンドを処理するストアを提供する。
// ストア自体はI/Oを行わず、永続化が必要かどうかを結果として返す。
package library

import (
	"time"

	"github.com/hitoshi/booktab/internal/model"
)

// StateIdle はストアの唯一の状態。
const StateIdle = "idle"

// Command はストアに送る変更コマンド。
type Command interface {
	commandName() string
}

// AddBook は本を追加する。同じIDが存在する場合は上書きする。
type AddBook struct {
	Book model.BookRecord
}

// UpdateBook は既存の本にパッチを適用する。
type UpdateBook struct {
	ID      string
	Updates BookPatch
}

// DeleteBook は本を削除する。
type DeleteBook struct {
	ID string
}

// SetStatus は読書状態を変更し、開始・読了時刻を記録する。
type SetStatus struct {
	ID     string
	Status model.BookStatus
}

// ReplaceBooks はコレクション全体を置き換える。インポートの確定で使用する。
type ReplaceBooks struct {
	Books model.BookCollection
}

func (AddBook) commandName() string      { return "ADD_BOOK" }
func (UpdateBook) commandName() string   { return "UPDATE_BOOK" }
func (DeleteBook) commandName() string   { return "DELETE_BOOK" }
func (SetStatus) commandName() string    { return "SET_STATUS" }
func (ReplaceBooks) commandName() string { return "REPLACE_BOOKS" }

// CommandName はメトリクスとログで使用するコマンド名を返す。
func CommandName(cmd Command) string {
	if cmd == nil {
		return "UNKNOWN"
	}
	return cmd.commandName()
}

// Result はコマンド適用の結果。
type Result struct {
	// SaveNeeded はコレクションが変更され、永続化が必要な場合にtrue。
	SaveNeeded bool
}

// Store は本のコレクションを保持する。
// 並行利用は想定しておらず、呼び出し側でコマンドを直列化すること。
type Store struct {
	books model.BookCollection
	now   func() time.Time
}

// Option はStoreの設定を変更する。
type Option func(*Store)

// WithClock は時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore は読み込み済みのコレクションからStoreを生成する。
// 渡されたコレクションは複製して保持する。
func NewStore(books model.BookCollection, opts ...Option) *Store {
	s := &Store{
		books: books.Clone(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State はストアの状態名を返す。常にidle。
func (s *Store) State() string {
	return StateIdle
}

// Books はコレクションの複製を返す。
func (s *Store) Books() model.BookCollection {
	return s.books.Clone()
}

// Book は指定IDの本の複製を返す。
func (s *Store) Book(id string) (model.BookRecord, bool) {
	book, ok := s.books[id]
	if !ok {
		return model.BookRecord{}, false
	}
	return book.Clone(), true
}

// Len は本の冊数を返す。
func (s *Store) Len() int {
	return len(s.books)
}

// Apply はコマンドを適用する。
// 存在しないIDへの更新・削除・状態変更は何もせず、SaveNeededはfalseになる。
func (s *Store) Apply(cmd Command) Result {
	switch c := cmd.(type) {
	case AddBook:
		s.books[c.Book.ID] = c.Book.Clone()
		return Result{SaveNeeded: true}

	case UpdateBook:
		existing, ok := s.books[c.ID]
		if !ok {
			return Result{}
		}
		updated := c.Updates.applyTo(existing.Clone())
		updated.ID = c.ID
		s.books[c.ID] = updated
		return Result{SaveNeeded: true}

	case DeleteBook:
		if _, ok := s.books[c.ID]; !ok {
			return Result{}
		}
		delete(s.books, c.ID)
		return Result{SaveNeeded: true}

	case SetStatus:
		existing, ok := s.books[c.ID]
		if !ok {
			return Result{}
		}
		s.books[c.ID] = s.withStatus(existing, c.Status)
		return Result{SaveNeeded: true}

	case ReplaceBooks:
		s.books = c.Books.Clone()
		if s.books == nil {
			s.books = model.BookCollection{}
		}
		return Result{SaveNeeded: true}
	}
	return Result{}
}

// withStatus は状態を変更したレコードを返す。
// readingへの変更ではstartedAtが未設定の場合のみ記録し、
// readへの変更ではfinishedAtを毎回更新する。
func (s *Store) withStatus(book model.BookRecord, status model.BookStatus) model.BookRecord {
	out := book.Clone()
	out.Status = status

	now := model.FormatTimestamp(s.now())
	if status == model.StatusReading && (out.StartedAt == nil || *out.StartedAt == "") {
		out.StartedAt = &now
	}
	if status == model.StatusRead {
		finished := now
		out.FinishedAt = &finished
	}
	return out
}
