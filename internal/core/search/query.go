package search

import (
	"strings"
	"unicode"
)

// SanitizeSearchText は全文検索用に引用符を除去し、句読点や記号を空白に置き換える。
// 結果は小文字化され、連続する空白は1つにまとめられる。
func SanitizeSearchText(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for _, r := range text {
		switch {
		case r == '"' || r == '\'' || r == '`' || r == '“' || r == '”' || r == '‘' || r == '’':
			// 引用符は区切りとせず除去する（"don't" → "dont"）
			continue
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// BuildPrefixQuery はサニタイズ済みの語を前方一致ANDのtsquery文字列に変換する。
// 例: "chicken breast" → "chicken:* & breast:*"
// 語が残らない場合は空文字列を返す。
func BuildPrefixQuery(text string) string {
	terms := strings.Fields(SanitizeSearchText(text))
	if len(terms) == 0 {
		return ""
	}

	parts := make([]string, len(terms))
	for i, term := range terms {
		parts[i] = term + ":*"
	}
	return strings.Join(parts, " & ")
}
