package search

import (
	"encoding/json"
	"fmt"
)

// SerializeEmbedding は埋め込みベクトルをストアに渡すテキスト形式（JSON配列）に変換する。
// 有限値のベクトルは DeserializeEmbedding で完全に復元できる。
func SerializeEmbedding(vector []float32) (string, error) {
	if vector == nil {
		vector = []float32{}
	}
	data, err := json.Marshal(vector)
	if err != nil {
		return "", fmt.Errorf("failed to serialize embedding: %w", err)
	}
	return string(data), nil
}

// DeserializeEmbedding はテキスト形式の埋め込みベクトルを復元する
func DeserializeEmbedding(serialized string) ([]float32, error) {
	var vector []float32
	if err := json.Unmarshal([]byte(serialized), &vector); err != nil {
		return nil, fmt.Errorf("failed to deserialize embedding: %w", err)
	}
	if vector == nil {
		vector = []float32{}
	}
	return vector, nil
}
