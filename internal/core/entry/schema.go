package entry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jinford/nutrilog/internal/core/llm"
)

// Entry はユーザー入力から抽出された1件の食品と推定摂取量
type Entry struct {
	Food         string  `json:"food"`
	PortionGrams float64 `json:"portion_size_gms"`
}

// ErrMalformedResponse はLLMの出力が期待する形に一致しない場合のエラー
var ErrMalformedResponse = errors.New("malformed parser response")

// ResponseSchema はパーサー出力を拘束するJSON Schema（food_log）
func ResponseSchema() *llm.ResponseSchema {
	item := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"food":             map[string]any{"type": "string"},
			"portion_size_gms": map[string]any{"type": "number"},
		},
		"required":             []string{"food", "portion_size_gms"},
		"additionalProperties": false,
	}

	return &llm.ResponseSchema{
		Name:        "food_log",
		Description: "Foods mentioned in a meal description with portion sizes in grams",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"foods": map[string]any{
					"type":  "array",
					"items": item,
				},
			},
			"required":             []string{"foods"},
			"additionalProperties": false,
		},
		Strict: true,
	}
}

type wireEntry struct {
	Food         *string  `json:"food"`
	PortionGrams *float64 `json:"portion_size_gms"`
}

type wireEnvelope struct {
	Foods *[]wireEntry `json:"foods"`
}

// DecodeEntries はLLMの出力を厳密に検証して Entry のリストに変換する。
// {"foods": [...]} 形式と配列のみの形式の両方を受け付ける。
// 未知のフィールド、必須フィールドの欠落、空の食品名、負の摂取量、末尾の余分なデータは
// ErrMalformedResponse となる。
func DecodeEntries(content string) ([]Entry, error) {
	trimmed := bytes.TrimSpace([]byte(content))
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()

	var items []wireEntry
	if trimmed[0] == '[' {
		if err := dec.Decode(&items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	} else {
		var envelope wireEnvelope
		if err := dec.Decode(&envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if envelope.Foods == nil {
			return nil, fmt.Errorf("%w: missing foods", ErrMalformedResponse)
		}
		items = *envelope.Foods
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrMalformedResponse)
	}

	entries := make([]Entry, 0, len(items))
	for i, item := range items {
		if item.Food == nil || item.PortionGrams == nil {
			return nil, fmt.Errorf("%w: item %d is missing food or portion_size_gms", ErrMalformedResponse, i)
		}

		food := strings.ToLower(strings.TrimSpace(*item.Food))
		if food == "" {
			return nil, fmt.Errorf("%w: item %d has an empty food name", ErrMalformedResponse, i)
		}
		if *item.PortionGrams < 0 {
			return nil, fmt.Errorf("%w: item %d has a negative portion", ErrMalformedResponse, i)
		}

		entries = append(entries, Entry{Food: food, PortionGrams: *item.PortionGrams})
	}

	return entries, nil
}
