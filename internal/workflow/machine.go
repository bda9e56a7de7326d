// Package workflow は画面遷移を管理する階層型ステートマシンを提供する。
// 状態と遷移表のみを持ち、コレクションの変更やI/Oは行わない。
package workflow

import (
	"strings"

	"github.com/hitoshi/booktab/internal/model"
	"github.com/hitoshi/booktab/internal/safety"
)

// TopState は最上位の状態。
type TopState string

const (
	Loading TopState = "loading"
	Ready   TopState = "ready"
	Failed  TopState = "error"
)

// SubState はready配下の画面状態。ready以外では空。
type SubState string

const (
	Viewing      SubState = "viewing"
	Adding       SubState = "adding"
	Editing      SubState = "editing"
	ViewingQueue SubState = "viewingQueue"
	EditingNote  SubState = "editingNote"
	ViewingData  SubState = "viewingData"
)

// State は階層状態を表す。
type State struct {
	Top TopState
	Sub SubState
}

// String は "ready.viewing" のようなドット区切りの状態名を返す。
func (s State) String() string {
	if s.Sub == "" {
		return string(s.Top)
	}
	return string(s.Top) + "." + string(s.Sub)
}

// Matches は状態が指定パス（"ready" や "ready.viewingQueue"）に一致するかを返す。
// 親状態のパスを指定した場合、配下のすべての子状態に一致する。
func (s State) Matches(path string) bool {
	full := s.String()
	return full == path || strings.HasPrefix(full, path+".")
}

// Context はステートマシンが保持する付随データ。nilはnullを表す。
// Dataは読み取り専用の参照として扱う。
type Context struct {
	Data              *model.LibraryData
	Error             *string
	EditingBookID     *string
	EditingNoteBookID *string
	ImportError       *string
	ImportPreview     *safety.ImportPreview
}

// Machine は状態とコンテキストの組。値として受け渡す。
type Machine struct {
	State   State
	Context Context
}

// New は初期状態（loading）のMachineを返す。
func New() Machine {
	return Machine{State: State{Top: Loading}}
}

// Transition はイベントを適用した新しいMachineを返す。
// 現在の状態で受け付けないイベントは無視し、元のMachineをそのまま返す。
func Transition(m Machine, ev Event) Machine {
	switch m.State.Top {
	case Loading:
		return fromLoading(m, ev)
	case Failed:
		if _, ok := ev.(Retry); ok {
			m.State = State{Top: Loading}
			m.Context.Error = nil
		}
		return m
	case Ready:
		// データ更新はどの子状態でも受け付け、子状態は変えない
		if e, ok := ev.(DataLoaded); ok {
			m.Context.Data = e.Data
			return m
		}
		return fromReady(m, ev)
	}
	return m
}

func fromLoading(m Machine, ev Event) Machine {
	switch e := ev.(type) {
	case DataLoaded:
		m.State = State{Top: Ready, Sub: Viewing}
		m.Context.Data = e.Data
		m.Context.Error = nil
	case DataFailed:
		m.State = State{Top: Failed}
		m.Context.Error = ptr(e.Error)
	}
	return m
}

func fromReady(m Machine, ev Event) Machine {
	to := func(sub SubState) Machine {
		m.State.Sub = sub
		return m
	}

	switch m.State.Sub {
	case Viewing:
		switch e := ev.(type) {
		case StartAdd:
			return to(Adding)
		case StartEdit:
			m.Context.EditingBookID = ptr(e.BookID)
			return to(Editing)
		case ViewQueue:
			return to(ViewingQueue)
		case ViewData:
			return to(ViewingData)
		}

	case Adding:
		switch ev.(type) {
		case CancelForm, BookSaved:
			return to(Viewing)
		}

	case Editing:
		switch ev.(type) {
		case CancelForm, BookSaved:
			m.Context.EditingBookID = nil
			return to(Viewing)
		}

	case ViewingQueue:
		switch e := ev.(type) {
		case BackToDashboard:
			return to(Viewing)
		case EditNote:
			m.Context.EditingNoteBookID = ptr(e.BookID)
			return to(EditingNote)
		case StartAdd:
			return to(Adding)
		}

	case EditingNote:
		switch ev.(type) {
		case NoteSaved, CancelNote:
			m.Context.EditingNoteBookID = nil
			return to(ViewingQueue)
		}

	case ViewingData:
		switch e := ev.(type) {
		case BackToDashboard:
			m.Context.ImportError = nil
			m.Context.ImportPreview = nil
			return to(Viewing)
		case ImportValidated:
			preview := e.Preview
			m.Context.ImportPreview = &preview
			m.Context.ImportError = nil
		case ImportFailed:
			m.Context.ImportError = ptr(e.Error)
			m.Context.ImportPreview = nil
		case ImportComplete:
			m.Context.ImportPreview = nil
		case ClearImportError:
			m.Context.ImportError = nil
		}
	}
	return m
}

func ptr(s string) *string {
	return &s
}
