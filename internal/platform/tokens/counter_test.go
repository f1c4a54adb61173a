package tokens

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCounterOrSkip は BPE ファイルを取得できない環境ではスキップする
func newCounterOrSkip(t *testing.T) *Counter {
	t.Helper()
	c, err := NewCounter()
	if err != nil {
		t.Skipf("tiktoken エンコーディングを取得できないためスキップ: %v", err)
	}
	return c
}

func TestCounter_TrimToTokenLimit(t *testing.T) {
	c := newCounterOrSkip(t)
	long := strings.Repeat("two eggs and a slice of toast, ", 200)

	tests := []struct {
		name      string
		text      string
		maxTokens int
		unchanged bool
	}{
		{name: "上限以下はそのまま", text: "a banana", maxTokens: 10, unchanged: true},
		{name: "上限0は切り詰めない", text: long, maxTokens: 0, unchanged: true},
		{name: "上限を超えると切り詰める", text: long, maxTokens: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.TrimToTokenLimit(tt.text, tt.maxTokens)
			if tt.unchanged {
				assert.Equal(t, tt.text, got)
				return
			}
			assert.True(t, strings.HasPrefix(tt.text, got))
			assert.LessOrEqual(t, c.Count(got), tt.maxTokens)
		})
	}
}

func TestCounter_TrimKeepsValidUTF8(t *testing.T) {
	c := newCounterOrSkip(t)
	text := strings.Repeat("納豆ご飯と味噌汁", 50)

	got := c.TrimToTokenLimit(text, 7)
	require.NotEqual(t, text, got)
	assert.True(t, utf8.ValidString(got))
}

func TestNilCounterFallsBackToEstimate(t *testing.T) {
	var c *Counter

	assert.Equal(t, 3, c.Count("123456789"))
	assert.Equal(t, "123456", c.TrimToTokenLimit("123456789", 2))
	assert.Equal(t, "1234", c.TrimToTokenLimit("1234", 2))
}
