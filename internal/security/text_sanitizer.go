// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は利用者が入力した自由記述（タイトル、著者、メモ、レビュー）から
// HTMLマークアップを除去し、プレーンテキストとして保存できる形に整える。
// bluemondayのStrictPolicyで全タグを除去したうえで、文字参照を元の文字に戻す。
// HTMLの要素名でない山括弧（<Untitled> など）はタグとみなさず、文字としてそのまま残す。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html/atom"
)

// TextSanitizer はプレーンテキストのサニタイズ機能のインターフェースを定義する。
// HTTP境界で本の情報を受け取った時点と、本棚フィードの取り込み時に使用される。
type TextSanitizer interface {
	// Sanitize は入力からすべてのHTMLタグを除去したテキストを返す。
	// script, styleタグは中身ごと除去される。
	// &amp; などの文字参照は元の文字に戻す。
	// 同一入力に対して常に同一出力を返し、出力を再度サニタイズしても変化しない。
	Sanitize(raw string) string
}

// maxSanitizePasses は結果が安定するまでサニタイズを繰り返す上限回数。
const maxSanitizePasses = 3

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに利用できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLタグを除去したプレーンテキストを返す。
// 文字参照を戻した結果に新たなタグが現れる場合（&lt;b&gt; など）は再度除去する。
func (s *textSanitizer) Sanitize(raw string) string {
	out := raw
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(escapeNonTags(out)))
		if next == out {
			break
		}
		out = next
	}
	return strings.TrimSpace(out)
}

// escapeNonTags はHTMLの要素名で始まらない「<」を&lt;に置き換える。
// 「<!--」「<!DOCTYPE」などの宣言はタグとして扱う。
func escapeNonTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '<' && !startsTag(s[i+1:]) {
			b.WriteString("&lt;")
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// startsTag は「<」に続く文字列が既知の要素の開始・終了タグか宣言かを返す。
func startsTag(rest string) bool {
	if strings.HasPrefix(rest, "!") || strings.HasPrefix(rest, "?") {
		return true
	}
	rest = strings.TrimPrefix(rest, "/")
	end := 0
	for end < len(rest) && isTagNameByte(rest[end]) {
		end++
	}
	if end == 0 {
		return false
	}
	return atom.Lookup([]byte(strings.ToLower(rest[:end]))) != 0
}

func isTagNameByte(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9'
}

// SanitizeAll はスライスの各要素をサニタイズし、空になった要素を除く。
func SanitizeAll(s TextSanitizer, values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = s.Sanitize(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
