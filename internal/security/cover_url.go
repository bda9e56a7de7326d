package security

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hitoshi/booktab/internal/model"
)

// allowedSchemes はカバー画像URLで許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// maxCoverURLLength はカバー画像URLの最大長。
const maxCoverURLLength = 2048

// ValidateCoverURL はカバー画像URLを静的に検証する。
// 空文字は「未設定」として許可する。
// javascript: や data: などのスキーム、ホストのないURLはINVALID_URLエラーとなる。
func ValidateCoverURL(rawURL string) error {
	if rawURL == "" {
		return nil
	}
	if len(rawURL) > maxCoverURLLength {
		return model.NewInvalidURLError(fmt.Sprintf("URLは%d文字以内で指定してください", maxCoverURLLength))
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return model.NewInvalidURLError("URLの形式が正しくありません")
	}

	// スキーム検証: http/httpsのみ許可
	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return model.NewInvalidURLError(fmt.Sprintf("許可されていないスキームです: %s", scheme))
	}

	// ホスト検証: 空ホストを拒否
	if parsed.Hostname() == "" {
		return model.NewInvalidURLError("ホスト名がありません")
	}

	return nil
}

// isAllowedScheme はURLスキームが許可リストに含まれるかを検証する。
func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}
