package model

// StorageKey はストレージ上でLibraryData全体を保持する唯一のキー。
const StorageKey = "booktab_data"

// CurrentSchemaVersion は現在の永続化スキーマのバージョン。
const CurrentSchemaVersion = 1

// DefaultView は起動時に表示する画面の設定値。
// 現在のナビゲーションでは参照されない予約フィールド。
type DefaultView string

const (
	// ViewCurrent は読書中の本を表示する画面。
	ViewCurrent DefaultView = "current"
	// ViewQueue は読みたい本のキュー画面。
	ViewQueue DefaultView = "queue"
	// ViewHistory は読了履歴の画面。
	ViewHistory DefaultView = "history"
)

// IsValid は画面設定が定義済みの値かを返す。
func (v DefaultView) IsValid() bool {
	switch v {
	case ViewCurrent, ViewQueue, ViewHistory:
		return true
	}
	return false
}

// Status は画面に対応する読書状態を返す。
func (v DefaultView) Status() BookStatus {
	switch v {
	case ViewQueue:
		return StatusWantToRead
	case ViewHistory:
		return StatusRead
	default:
		return StatusReading
	}
}

// BookCollection はIDをキーとした本のマップ。
// 反復順序には意味を持たない。
type BookCollection map[string]BookRecord

// Clone は各レコードを複製した新しいコレクションを返す。
func (c BookCollection) Clone() BookCollection {
	out := make(BookCollection, len(c))
	for id, book := range c {
		out[id] = book.Clone()
	}
	return out
}

// UserSettings はユーザー設定を表す。
type UserSettings struct {
	DefaultView DefaultView `json:"defaultView"`
}

// LibraryData は永続化されるデータ全体。
type LibraryData struct {
	SchemaVersion int            `json:"schemaVersion"`
	Books         BookCollection `json:"books"`
	Settings      UserSettings   `json:"settings"`
}

// Clone はLibraryDataのディープコピーを返す。
func (d *LibraryData) Clone() *LibraryData {
	if d == nil {
		return nil
	}
	return &LibraryData{
		SchemaVersion: d.SchemaVersion,
		Books:         d.Books.Clone(),
		Settings:      d.Settings,
	}
}

// DefaultData は有効な永続データが存在しない場合の初期データを返す。
func DefaultData() *LibraryData {
	return &LibraryData{
		SchemaVersion: CurrentSchemaVersion,
		Books:         BookCollection{},
		Settings: UserSettings{
			DefaultView: ViewCurrent,
		},
	}
}
