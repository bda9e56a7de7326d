// Package schema は永続データとインポートファイルの構造検証を提供する。
// 信頼できない入力（ストレージ読み込み値、インポートファイル）を型付きのLibraryDataに変換し、
// 違反したすべての項目を列挙する。
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/hitoshi/booktab/internal/model"
)

// Issue は1件の検証違反を表す。
type Issue struct {
	Path    string // 違反箇所（例: books.b1.status）。ルートの場合は空
	Message string
}

// String はパスを前置したメッセージを返す。
func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// Issues は検証違反の一覧。
type Issues []Issue

// Error は全違反を "; " で連結した文字列を返す。
func (is Issues) Error() string {
	msgs := make([]string, len(is))
	for i, issue := range is {
		msgs[i] = issue.String()
	}
	return strings.Join(msgs, "; ")
}

// Result は検証結果を表す。成功時はDataが設定され、Issuesは空になる。
type Result struct {
	Data   *model.LibraryData
	Issues Issues
}

// OK は検証に成功したかを返す。
func (r Result) OK() bool {
	return r.Data != nil && len(r.Issues) == 0
}

// ErrMalformed はJSONとして解析できない入力を表す。
var ErrMalformed = errors.New("malformed JSON")

// Decode はJSONバイト列を未型付けの値に変換する。
// 数値はjson.Numberとして保持し、整数判定で精度を失わないようにする。
// 末尾に余分なデータがある場合もErrMalformedを返す。
func Decode(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after top-level value", ErrMalformed)
	}
	return raw, nil
}

// ValidateJSON はJSONを解析してから検証する。
// JSONとして不正な場合のみerror（ErrMalformedをラップ）を返す。
func ValidateJSON(b []byte) (Result, error) {
	raw, err := Decode(b)
	if err != nil {
		return Result{}, err
	}
	return Validate(raw), nil
}

// Validate は任意の値をLibraryDataとして検証する。
// 最初の違反で止めず、すべての違反を収集する。未知のキーは無視する。
// 不正な入力に対してpanicすることはない。
func Validate(raw any) Result {
	v := &validator{}
	data := v.library(raw)
	if len(v.issues) > 0 {
		return Result{Issues: v.issues}
	}
	return Result{Data: data}
}

type validator struct {
	issues Issues
}

func (v *validator) fail(path, format string, args ...any) {
	v.issues = append(v.issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) library(raw any) *model.LibraryData {
	obj, ok := raw.(map[string]any)
	if !ok {
		v.fail("", "Expected object, received %s", typeName(raw))
		return nil
	}

	data := &model.LibraryData{}
	if n, ok := v.integer(obj, "schemaVersion", "schemaVersion", true); ok {
		data.SchemaVersion = n
	}
	data.Books = v.books(obj)
	data.Settings = v.settings(obj)
	return data
}

func (v *validator) books(root map[string]any) model.BookCollection {
	raw, present := root["books"]
	if !present {
		v.fail("books", "Required")
		return nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		v.fail("books", "Expected object, received %s", typeName(raw))
		return nil
	}

	// 違反の報告順を安定させるためキーをソートして走査する
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	books := make(model.BookCollection, len(obj))
	for _, key := range keys {
		path := "books." + key
		book, ok := v.book(path, obj[key])
		if !ok {
			continue
		}
		if book.ID != key {
			v.fail(path+".id", "Book id %q does not match its key", book.ID)
			continue
		}
		books[key] = book
	}
	return books
}

func (v *validator) book(path string, raw any) (model.BookRecord, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		v.fail(path, "Expected object, received %s", typeName(raw))
		return model.BookRecord{}, false
	}

	before := len(v.issues)
	var b model.BookRecord

	if s, ok := v.str(obj, path, "id"); ok {
		b.ID = s
	}
	if s, ok := v.str(obj, path, "title"); ok {
		b.Title = s
	}
	if list, ok := v.strList(obj, path, "authors"); ok {
		b.Authors = list
	}
	b.CoverURL = v.optStr(obj, path, "coverUrl")
	b.ISBN = v.optStr(obj, path, "isbn")
	b.ExternalID = v.optStr(obj, path, "externalId")
	if s, ok := v.str(obj, path, "status"); ok {
		if status := model.BookStatus(s); status.IsValid() {
			b.Status = status
		} else {
			v.fail(path+".status", "Invalid enum value. Expected %s, received '%s'", statusChoices(), s)
		}
	}
	if s, ok := v.str(obj, path, "addedAt"); ok {
		b.AddedAt = s
	}
	b.StartedAt = v.optStr(obj, path, "startedAt")
	b.FinishedAt = v.optStr(obj, path, "finishedAt")
	if list, ok := v.strList(obj, path, "tags"); ok {
		b.Tags = list
	}
	if n, ok := v.integer(obj, path+".priority", "priority", true); ok {
		b.Priority = n
	}
	b.QueueNote = v.optStr(obj, path, "queueNote")
	b.ReadingNotes = v.optStr(obj, path, "readingNotes")
	b.Review = v.optStr(obj, path, "review")

	return b, len(v.issues) == before
}

func (v *validator) settings(root map[string]any) model.UserSettings {
	var s model.UserSettings
	raw, present := root["settings"]
	if !present {
		v.fail("settings", "Required")
		return s
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		v.fail("settings", "Expected object, received %s", typeName(raw))
		return s
	}
	if view, ok := v.str(obj, "settings", "defaultView"); ok {
		if dv := model.DefaultView(view); dv.IsValid() {
			s.DefaultView = dv
		} else {
			v.fail("settings.defaultView", "Invalid enum value. Expected 'current' | 'queue' | 'history', received '%s'", view)
		}
	}
	return s
}

// str は必須の文字列フィールドを取り出す。
func (v *validator) str(obj map[string]any, parent, key string) (string, bool) {
	path := joinPath(parent, key)
	raw, present := obj[key]
	if !present {
		v.fail(path, "Required")
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		v.fail(path, "Expected string, received %s", typeName(raw))
		return "", false
	}
	return s, true
}

// optStr は任意の文字列フィールドを取り出す。キーが存在しない場合はnil。
func (v *validator) optStr(obj map[string]any, parent, key string) *string {
	raw, present := obj[key]
	if !present {
		return nil
	}
	s, ok := raw.(string)
	if !ok {
		v.fail(joinPath(parent, key), "Expected string, received %s", typeName(raw))
		return nil
	}
	return &s
}

func (v *validator) strList(obj map[string]any, parent, key string) ([]string, bool) {
	path := joinPath(parent, key)
	raw, present := obj[key]
	if !present {
		v.fail(path, "Required")
		return nil, false
	}
	items, ok := raw.([]any)
	if !ok {
		if typed, ok := raw.([]string); ok {
			return append([]string{}, typed...), true
		}
		v.fail(path, "Expected array, received %s", typeName(raw))
		return nil, false
	}

	out := make([]string, 0, len(items))
	valid := true
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			v.fail(fmt.Sprintf("%s.%d", path, i), "Expected string, received %s", typeName(item))
			valid = false
			continue
		}
		out = append(out, s)
	}
	return out, valid
}

// integer は整数値のフィールドを取り出す。JSON数値で小数部を持つものは拒否する。
func (v *validator) integer(obj map[string]any, path, key string, required bool) (int, bool) {
	raw, present := obj[key]
	if !present {
		if required {
			v.fail(path, "Required")
		}
		return 0, false
	}
	f, ok := toNumber(raw)
	if !ok {
		v.fail(path, "Expected number, received %s", typeName(raw))
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		v.fail(path, "Expected integer, received float")
		return 0, false
	}
	if f > model.MaxPriority || f < -model.MaxPriority {
		v.fail(path, "Number must be a safe integer")
		return 0, false
	}
	return int(f), true
}

func toNumber(raw any) (float64, bool) {
	switch n := raw.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// typeName はエラーメッセージ用にJSON上の型名を返す。
func typeName(raw any) string {
	switch raw.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int32, int64:
		return "number"
	case []any, []string:
		return "array"
	case map[string]any:
		return "object"
	}
	return "unknown"
}

func statusChoices() string {
	quoted := make([]string, len(model.BookStatuses))
	for i, s := range model.BookStatuses {
		quoted[i] = "'" + string(s) + "'"
	}
	return strings.Join(quoted, " | ")
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
