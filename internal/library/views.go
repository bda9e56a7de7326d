package library

import (
	"sort"

	"github.com/hitoshi/booktab/internal/model"
)

// Sorted はaddedAtの昇順（同時刻はID順）で並べた一覧を返す。
func Sorted(books model.BookCollection) []model.BookRecord {
	out := make([]model.BookRecord, 0, len(books))
	for _, b := range books {
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt != out[j].AddedAt {
			return out[i].AddedAt < out[j].AddedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ByStatus は指定状態の本をaddedAt順で返す。
func ByStatus(books model.BookCollection, status model.BookStatus) []model.BookRecord {
	var out []model.BookRecord
	for _, b := range Sorted(books) {
		if b.Status == status {
			out = append(out, b)
		}
	}
	if out == nil {
		out = []model.BookRecord{}
	}
	return out
}

// Queue は読みたい本の一覧を返す。priorityの高い順、同じ場合はaddedAt順。
func Queue(books model.BookCollection) []model.BookRecord {
	out := ByStatus(books, model.StatusWantToRead)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

// CurrentlyReading は読書中の本の一覧を返す。
func CurrentlyReading(books model.BookCollection) []model.BookRecord {
	return ByStatus(books, model.StatusReading)
}

// History は読了した本の一覧を返す。
func History(books model.BookCollection) []model.BookRecord {
	return ByStatus(books, model.StatusRead)
}

// ForView は画面設定に対応する一覧を返す。
func ForView(books model.BookCollection, view model.DefaultView) []model.BookRecord {
	switch view {
	case model.ViewQueue:
		return Queue(books)
	case model.ViewHistory:
		return History(books)
	default:
		return CurrentlyReading(books)
	}
}

// CountByStatus は状態ごとの冊数を返す。すべての状態のキーを含む。
func CountByStatus(books model.BookCollection) map[model.BookStatus]int {
	counts := make(map[model.BookStatus]int, len(model.BookStatuses))
	for _, s := range model.BookStatuses {
		counts[s] = 0
	}
	for _, b := range books {
		counts[b.Status]++
	}
	return counts
}
