package tokens

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding はチャットモデル共通のエンコーディング
const DefaultEncoding = "cl100k_base"

// Counter は tiktoken でトークン数を数え、上限に合わせて切り詰める
type Counter struct {
	encoding *tiktoken.Tiktoken
}

// NewCounter は cl100k_base を使う Counter を作成する
func NewCounter() (*Counter, error) {
	encoding, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}
	return &Counter{encoding: encoding}, nil
}

// Count はテキストのトークン数を返す
func (c *Counter) Count(text string) int {
	if c == nil || c.encoding == nil {
		return Estimate(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// TrimToTokenLimit は先頭から maxTokens トークン分だけを残したテキストを返す。
// 上限以下または maxTokens が0以下の場合はそのまま返す。
func (c *Counter) TrimToTokenLimit(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	if c == nil || c.encoding == nil {
		return trimByEstimate(text, maxTokens)
	}

	encoded := c.encoding.Encode(text, nil, nil)
	if len(encoded) <= maxTokens {
		return text
	}
	// 末尾のトークンがマルチバイト文字の途中で切れた場合に備えて不正なUTF-8を落とす
	return strings.ToValidUTF8(c.encoding.Decode(encoded[:maxTokens]), "")
}

// Estimate はエンコーディングなしでの大まかなトークン数（3文字で1トークン）
func Estimate(text string) int {
	return len([]rune(text)) / 3
}

func trimByEstimate(text string, maxTokens int) string {
	runes := []rune(text)
	if limit := maxTokens * 3; len(runes) > limit {
		return string(runes[:limit])
	}
	return text
}
