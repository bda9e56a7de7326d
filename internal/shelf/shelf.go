// Package shelf は本棚フィード（GoodreadsのRSSエクスポートなど）を解析し、
// 取り込み可能な本の一覧に変換する。
package shelf

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/hitoshi/booktab/internal/model"
	"github.com/hitoshi/booktab/internal/security"
)

// 本棚フィードの独自要素名。
const (
	fieldAuthorName   = "author_name"
	fieldISBN         = "isbn"
	fieldBookID       = "book_id"
	fieldLargeImage   = "book_large_image_url"
	fieldImage        = "book_image_url"
	fieldUserShelves  = "user_shelves"
	shelfReading      = "currently-reading"
	shelfRead         = "read"
	shelfWantToRead   = "to-read"
	maxShelfFeedBytes = 5 << 20
)

// Entry はフィードの1項目から得られた本の候補。
type Entry struct {
	Input model.BookInput
	Tags  []string
}

// Result は本棚フィードの解析結果。
// Skippedはタイトルまたは著者が取れず取り込めなかった項目数。
type Result struct {
	Title   string
	Entries []Entry
	Skipped int
}

// Parser は本棚フィードのパーサー。
type Parser struct {
	sanitizer security.TextSanitizer
}

// NewParser はParserの新しいインスタンスを生成する。
func NewParser(sanitizer security.TextSanitizer) *Parser {
	return &Parser{sanitizer: sanitizer}
}

// Parse はRSS/Atom文書を解析する。
// 文書として解釈できない場合はSHELF_PARSE_FAILEDエラーを返す。
func (p *Parser) Parse(content []byte) (*Result, error) {
	if len(strings.TrimSpace(string(content))) == 0 {
		return nil, model.NewShelfParseFailedError("フィードが空です")
	}
	if len(content) > maxShelfFeedBytes {
		return nil, model.NewShelfParseFailedError("フィードが大きすぎます")
	}

	// gofeedでフィードをパース
	parsedFeed, err := gofeed.NewParser().ParseString(string(content))
	if err != nil {
		return nil, model.NewShelfParseFailedError(err.Error())
	}

	result := &Result{
		Title:   p.sanitizer.Sanitize(parsedFeed.Title),
		Entries: make([]Entry, 0, len(parsedFeed.Items)),
	}
	for _, item := range parsedFeed.Items {
		if item == nil {
			continue
		}
		entry, ok := p.convertItem(item)
		if !ok {
			result.Skipped++
			continue
		}
		result.Entries = append(result.Entries, entry)
	}
	return result, nil
}

// convertItem はgofeedの項目を本の候補に変換する。
func (p *Parser) convertItem(item *gofeed.Item) (Entry, bool) {
	in := model.BookInput{
		Title:      p.sanitizer.Sanitize(item.Title),
		Authors:    p.authors(item),
		ISBN:       p.sanitizer.Sanitize(custom(item, fieldISBN)),
		ExternalID: p.sanitizer.Sanitize(custom(item, fieldBookID)),
		CoverURL:   coverURL(item),
	}
	// book_idがない場合はGUIDを外部IDとして使用
	if in.ExternalID == "" {
		in.ExternalID = strings.TrimSpace(item.GUID)
	}

	status, tags := classifyShelves(custom(item, fieldUserShelves))
	in.Status = status

	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return Entry{}, false
	}
	return Entry{Input: in, Tags: tags}, true
}

// authors は独自要素、Author、Authorsの順に著者を取得する。
func (p *Parser) authors(item *gofeed.Item) []string {
	if name := custom(item, fieldAuthorName); name != "" {
		return security.SanitizeAll(p.sanitizer, model.ParseAuthors(name))
	}
	if item.Author != nil && item.Author.Name != "" {
		return security.SanitizeAll(p.sanitizer, []string{item.Author.Name})
	}
	names := make([]string, 0, len(item.Authors))
	for _, a := range item.Authors {
		if a != nil {
			names = append(names, a.Name)
		}
	}
	return security.SanitizeAll(p.sanitizer, names)
}

// coverURL は検証を通過した最初のカバー画像URLを返す。
func coverURL(item *gofeed.Item) string {
	candidates := []string{custom(item, fieldLargeImage), custom(item, fieldImage)}
	if item.Image != nil {
		candidates = append(candidates, item.Image.URL)
	}
	candidates = append(candidates, descriptionImage(item.Description))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c != "" && security.ValidateCoverURL(c) == nil {
			return c
		}
	}
	return ""
}

// descriptionImage は説明文HTML内の最初のimg要素のsrcを返す。
func descriptionImage(description string) string {
	if !strings.Contains(description, "<img") {
		return ""
	}
	root, err := html.Parse(strings.NewReader(description))
	if err != nil {
		return ""
	}
	return goquery.NewDocumentFromNode(root).Find("img").First().AttrOr("src", "")
}

// classifyShelves は本棚名の一覧から読書状態とタグを決定する。
// 標準の本棚（to-read, currently-reading, read）以外はタグになる。
func classifyShelves(raw string) (model.BookStatus, []string) {
	status := model.StatusWantToRead
	tags := []string{}
	seen := map[string]bool{}
	for _, shelf := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		shelf = strings.ToLower(strings.TrimSpace(shelf))
		switch shelf {
		case "":
			continue
		case shelfReading:
			status = model.StatusReading
		case shelfRead:
			status = model.StatusRead
		case shelfWantToRead:
		default:
			if !seen[shelf] {
				seen[shelf] = true
				tags = append(tags, shelf)
			}
		}
	}
	return status, tags
}

func custom(item *gofeed.Item, key string) string {
	if item.Custom == nil {
		return ""
	}
	return strings.TrimSpace(item.Custom[key])
}
