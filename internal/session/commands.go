package session

import (
	"context"
	"strings"

	"github.com/hitoshi/booktab/internal/library"
	"github.com/hitoshi/booktab/internal/model"
	"github.com/hitoshi/booktab/internal/security"
	"github.com/hitoshi/booktab/internal/workflow"
)

// AddBook は入力を正規化・検証して新しい本を追加し、保存する。
// 追加画面を開いていた場合はダッシュボードに戻る。
// 保存に失敗した場合も本はメモリ上に追加され、SAVE_FAILEDエラーとともに返す。
func (s *Session) AddBook(ctx context.Context, in model.BookInput) (model.BookRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireReady(); err != nil {
		return model.BookRecord{}, err
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return model.BookRecord{}, err
	}
	if err := security.ValidateCoverURL(in.CoverURL); err != nil {
		return model.BookRecord{}, err
	}

	record := model.NewBookRecord(in, s.now())
	err := s.apply(ctx, library.AddBook{Book: record})
	s.transition(workflow.BookSaved{})
	return record, err
}

// EditBook は既存の本にパッチを適用して保存する。
// 編集画面を開いていた場合はダッシュボードに戻る。
func (s *Session) EditBook(ctx context.Context, id string, patch library.BookPatch) (model.BookRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireBook(id); err != nil {
		return model.BookRecord{}, err
	}
	current, _ := s.store.Book(id)
	patch, err := restrictPatch(current, normalizePatch(patch))
	if err != nil {
		return model.BookRecord{}, err
	}
	if err := patch.Validate(); err != nil {
		return model.BookRecord{}, err
	}
	if patch.CoverURL != nil {
		if err := security.ValidateCoverURL(*patch.CoverURL); err != nil {
			return model.BookRecord{}, err
		}
	}

	err = s.apply(ctx, library.UpdateBook{ID: id, Updates: patch})
	s.transition(workflow.BookSaved{})
	book, _ := s.store.Book(id)
	return book, err
}

// DeleteBook は本を削除して保存する。
// 削除した本を編集中だった場合はその画面を閉じる。
func (s *Session) DeleteBook(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireBook(id); err != nil {
		return err
	}

	err := s.apply(ctx, library.DeleteBook{ID: id})

	mc := s.machine.Context
	if s.machine.State.Sub == workflow.Editing && mc.EditingBookID != nil && *mc.EditingBookID == id {
		s.transition(workflow.CancelForm{})
	}
	if s.machine.State.Sub == workflow.EditingNote && mc.EditingNoteBookID != nil && *mc.EditingNoteBookID == id {
		s.transition(workflow.CancelNote{})
	}
	return err
}

// ChangeStatus は読書状態を変更して保存する。
func (s *Session) ChangeStatus(ctx context.Context, id string, status model.BookStatus) (model.BookRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireBook(id); err != nil {
		return model.BookRecord{}, err
	}
	if !status.IsValid() {
		return model.BookRecord{}, model.NewInvalidStatusError(string(status))
	}

	err := s.apply(ctx, library.SetStatus{ID: id, Status: status})
	book, _ := s.store.Book(id)
	return book, err
}

// SaveQueueNote はキューメモを保存する。空文字はメモを削除する。
// メモ編集画面を開いていた場合はキュー画面に戻る。
func (s *Session) SaveQueueNote(ctx context.Context, id, note string) (model.BookRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireBook(id); err != nil {
		return model.BookRecord{}, err
	}

	note = strings.TrimSpace(note)
	err := s.apply(ctx, library.UpdateBook{ID: id, Updates: library.BookPatch{QueueNote: &note}})
	s.transition(workflow.NoteSaved{})
	book, _ := s.store.Book(id)
	return book, err
}

// restrictPatch は編集で変更できない項目をパッチから外す。
// IDと、現在値と同じ状態・日時は無視する。異なる値への変更はINVALID_REQUESTとする。
// 状態と日時はChangeStatusだけが更新する。
func restrictPatch(current model.BookRecord, p library.BookPatch) (library.BookPatch, error) {
	p.ID = nil
	if p.Status != nil {
		if *p.Status != current.Status {
			return p, model.NewInvalidRequestError("読書状態は PUT /api/books/{id}/status で変更してください。")
		}
		p.Status = nil
	}
	for _, f := range []struct {
		patch   **string
		current *string
	}{
		{&p.AddedAt, &current.AddedAt},
		{&p.StartedAt, current.StartedAt},
		{&p.FinishedAt, current.FinishedAt},
	} {
		if *f.patch == nil {
			continue
		}
		if f.current == nil || **f.patch != *f.current {
			return p, model.NewInvalidRequestError("追加日時・開始日時・読了日時は編集できません。")
		}
		*f.patch = nil
	}
	return p, nil
}

// normalizePatch はタイトルと著者の前後空白を除去し、空の著者を取り除く。
func normalizePatch(p library.BookPatch) library.BookPatch {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		p.Title = &title
	}
	if p.Authors != nil {
		authors := model.BookInput{Authors: *p.Authors}.Normalize().Authors
		p.Authors = &authors
	}
	if p.CoverURL != nil {
		cover := strings.TrimSpace(*p.CoverURL)
		p.CoverURL = &cover
	}
	return p
}
