package search

import (
	"context"

	"github.com/jinford/nutrilog/internal/core/nutrition"
)

// Store は食品レコードの検索ストア
type Store interface {
	// FullTextSearch はプレフィックスAND形式のクエリで全文検索する
	FullTextSearch(ctx context.Context, prefixQuery string, limit int) ([]nutrition.Candidate, error)

	// SubstringSearch は名前の部分一致（大文字小文字を区別しない）で検索する
	SubstringSearch(ctx context.Context, name string, limit int) ([]nutrition.Candidate, error)

	// GetFoodByID はIDで食品レコードを取得する
	GetFoodByID(ctx context.Context, id int64) (*nutrition.FoodRecord, error)
}

// VectorSearcher はベクトル類似度検索をサポートするストア
// Store がこれを実装していない場合、セマンティック検索はスキップされる
type VectorSearcher interface {
	// VectorSearch はシリアライズ済みの埋め込みで距離の小さい順に検索する
	VectorSearch(ctx context.Context, serializedEmbedding string, limit int) ([]nutrition.Candidate, error)
}

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string, inputType InputType) ([]float32, error)

	// BatchEmbed は複数テキストのEmbeddingを入力順に生成する
	BatchEmbed(ctx context.Context, texts []string, inputType InputType) ([][]float32, error)
}

// StrategyRecorder は戦略ごとの実行結果を記録する
type StrategyRecorder interface {
	RecordStrategy(strategy string, outcome StrategyOutcome)
}

type nopRecorder struct{}

func (nopRecorder) RecordStrategy(string, StrategyOutcome) {}
