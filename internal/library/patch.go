package library

import "github.com/hitoshi/booktab/internal/model"

// BookPatch はUPDATE_BOOKで適用する部分更新。
// nilのフィールドは変更しない。任意の文字列フィールドに空文字を指定すると未設定に戻す。
// IDは指定されても無視され、常に更新対象のIDが維持される。
type BookPatch struct {
	ID           *string           `json:"id,omitempty"`
	Title        *string           `json:"title,omitempty"`
	Authors      *[]string         `json:"authors,omitempty"`
	CoverURL     *string           `json:"coverUrl,omitempty"`
	ISBN         *string           `json:"isbn,omitempty"`
	ExternalID   *string           `json:"externalId,omitempty"`
	Status       *model.BookStatus `json:"status,omitempty"`
	AddedAt      *string           `json:"addedAt,omitempty"`
	StartedAt    *string           `json:"startedAt,omitempty"`
	FinishedAt   *string           `json:"finishedAt,omitempty"`
	Tags         *[]string         `json:"tags,omitempty"`
	Priority     *int              `json:"priority,omitempty"`
	QueueNote    *string           `json:"queueNote,omitempty"`
	ReadingNotes *string           `json:"readingNotes,omitempty"`
	Review       *string           `json:"review,omitempty"`
}

// IsEmpty は変更項目が1つもないかを返す。
func (p BookPatch) IsEmpty() bool {
	return p.Title == nil && p.Authors == nil && p.CoverURL == nil && p.ISBN == nil &&
		p.ExternalID == nil && p.Status == nil && p.AddedAt == nil && p.StartedAt == nil &&
		p.FinishedAt == nil && p.Tags == nil && p.Priority == nil && p.QueueNote == nil &&
		p.ReadingNotes == nil && p.Review == nil
}

// Validate はパッチの値を検証する。
func (p BookPatch) Validate() error {
	if p.Title != nil && *p.Title == "" {
		return model.NewInvalidRequestError("タイトルを空にすることはできません。")
	}
	if p.Authors != nil && len(*p.Authors) == 0 {
		return model.NewInvalidRequestError("著者を1人以上入力してください。")
	}
	if p.Status != nil && !p.Status.IsValid() {
		return model.NewInvalidStatusError(string(*p.Status))
	}
	if p.Priority != nil && !model.PriorityInRange(int64(*p.Priority)) {
		return model.NewInvalidRequestError("優先度が範囲外です。")
	}
	return nil
}

func (p BookPatch) applyTo(b model.BookRecord) model.BookRecord {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Authors != nil {
		b.Authors = append([]string{}, (*p.Authors)...)
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.AddedAt != nil {
		b.AddedAt = *p.AddedAt
	}
	if p.Tags != nil {
		b.Tags = append([]string{}, (*p.Tags)...)
	}
	if p.Priority != nil {
		b.Priority = *p.Priority
	}
	setOptional(&b.CoverURL, p.CoverURL)
	setOptional(&b.ISBN, p.ISBN)
	setOptional(&b.ExternalID, p.ExternalID)
	setOptional(&b.StartedAt, p.StartedAt)
	setOptional(&b.FinishedAt, p.FinishedAt)
	setOptional(&b.QueueNote, p.QueueNote)
	setOptional(&b.ReadingNotes, p.ReadingNotes)
	setOptional(&b.Review, p.Review)
	return b
}

func setOptional(dst **string, v *string) {
	if v == nil {
		return
	}
	if *v == "" {
		*dst = nil
		return
	}
	s := *v
	*dst = &s
}
