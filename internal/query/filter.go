// Package query は本の一覧をexpr式で絞り込む機能を提供する。
//
// 式では次の変数を参照できる: id, title, authors, status, tags, priority,
// addedAt, startedAt, finishedAt, isbn, externalId, coverUrl, queueNote,
// readingNotes, review。未設定の任意項目は空文字として扱う。
//
//	status == "reading" && "sf" in tags
//	priority > 0 && any(authors, {# contains "Gibson"})
package query

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/hitoshi/booktab/internal/model"
)

// maxExpressionLength はフィルタ式の最大長。
const maxExpressionLength = 512

// bookEnv は式の評価環境。
type bookEnv struct {
	ID           string   `expr:"id"`
	Title        string   `expr:"title"`
	Authors      []string `expr:"authors"`
	Status       string   `expr:"status"`
	Tags         []string `expr:"tags"`
	Priority     int      `expr:"priority"`
	AddedAt      string   `expr:"addedAt"`
	StartedAt    string   `expr:"startedAt"`
	FinishedAt   string   `expr:"finishedAt"`
	ISBN         string   `expr:"isbn"`
	ExternalID   string   `expr:"externalId"`
	CoverURL     string   `expr:"coverUrl"`
	QueueNote    string   `expr:"queueNote"`
	ReadingNotes string   `expr:"readingNotes"`
	Review       string   `expr:"review"`
}

func newBookEnv(b model.BookRecord) bookEnv {
	return bookEnv{
		ID:           b.ID,
		Title:        b.Title,
		Authors:      b.Authors,
		Status:       string(b.Status),
		Tags:         b.Tags,
		Priority:     b.Priority,
		AddedAt:      b.AddedAt,
		StartedAt:    deref(b.StartedAt),
		FinishedAt:   deref(b.FinishedAt),
		ISBN:         deref(b.ISBN),
		ExternalID:   deref(b.ExternalID),
		CoverURL:     deref(b.CoverURL),
		QueueNote:    deref(b.QueueNote),
		ReadingNotes: deref(b.ReadingNotes),
		Review:       deref(b.Review),
	}
}

// Filter はコンパイル済みのフィルタ式。
type Filter struct {
	source  string
	program *vm.Program
}

// Compile はフィルタ式をコンパイルする。
// 式は真偽値を返す必要があり、構文・型エラーはINVALID_FILTERとして返す。
func Compile(expression string) (*Filter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, model.NewInvalidFilterError("式が空です")
	}
	if len(expression) > maxExpressionLength {
		return nil, model.NewInvalidFilterError(fmt.Sprintf("式は%d文字以内で指定してください", maxExpressionLength))
	}

	program, err := expr.Compile(expression, expr.Env(bookEnv{}), expr.AsBool())
	if err != nil {
		return nil, model.NewInvalidFilterError(err.Error())
	}
	return &Filter{source: expression, program: program}, nil
}

// String は元の式を返す。
func (f *Filter) String() string {
	return f.source
}

// Match は本が条件を満たすかを返す。
func (f *Filter) Match(b model.BookRecord) (bool, error) {
	out, err := expr.Run(f.program, newBookEnv(b))
	if err != nil {
		return false, model.NewInvalidFilterError(err.Error())
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Apply は条件を満たす本だけを順序を保って返す。
// nilのFilterはすべての本を返す。
func (f *Filter) Apply(books []model.BookRecord) ([]model.BookRecord, error) {
	if f == nil {
		return books, nil
	}
	out := make([]model.BookRecord, 0, len(books))
	for _, b := range books {
		ok, err := f.Match(b)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
