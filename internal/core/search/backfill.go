package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/nutrilog/internal/core/nutrition"
	"github.com/jinford/nutrilog/internal/shared/batch"
)

// DefaultBackfillBatchSize は1回の埋め込みリクエストで扱う食品数
const DefaultBackfillBatchSize = 96

const backfillWriteConcurrency = 4

// EmbeddingStore はベクトル未設定の食品を列挙し、ベクトルを書き込む
type EmbeddingStore interface {
	ListFoodsWithoutEmbedding(ctx context.Context, afterID int64, limit int) ([]nutrition.Candidate, error)
	UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error
}

type embeddingWrite struct {
	food   nutrition.Candidate
	vector []float32
}

// BackfillStats は埋め込み補完の結果
type BackfillStats struct {
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
}

// BackfillEmbeddings はベクトル未設定の食品名を文書として埋め込み、保存する。
// 失敗したバッチはログに残して次のバッチへ進む。一覧取得の失敗と context のキャンセルのみエラーを返す。
func BackfillEmbeddings(ctx context.Context, store EmbeddingStore, embedder Embedder, batchSize int, logger *slog.Logger) (BackfillStats, error) {
	if batchSize <= 0 {
		batchSize = DefaultBackfillBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	var stats BackfillStats
	var cursor int64
	for batchNo := 1; ; batchNo++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		foods, err := store.ListFoodsWithoutEmbedding(ctx, cursor, batchSize)
		if err != nil {
			return stats, fmt.Errorf("failed to list foods without embedding: %w", err)
		}
		if len(foods) == 0 {
			return stats, nil
		}
		cursor = foods[len(foods)-1].ID

		names := make([]string, len(foods))
		for i, f := range foods {
			names[i] = f.Name
		}

		vectors, err := embedder.BatchEmbed(ctx, names, InputDocument)
		if err == nil && len(vectors) != len(foods) {
			err = fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(foods))
		}
		if err != nil {
			logger.Warn("embedding batch failed", "batch", batchNo, "firstID", foods[0].ID, "size", len(foods), "error", err)
			stats.Failed += len(foods)
			continue
		}

		writes := make([]embeddingWrite, len(foods))
		for i, f := range foods {
			writes[i] = embeddingWrite{food: f, vector: vectors[i]}
		}
		results := batch.Process(ctx, writes, batch.Config{
			MaxConcurrency: backfillWriteConcurrency,
			ProgressCallback: func(p batch.Progress) {
				logger.Debug("storing embeddings", "batch", batchNo, "progress", p.String())
			},
		}, func(ctx context.Context, w embeddingWrite) (struct{}, error) {
			return struct{}{}, store.UpdateEmbedding(ctx, w.food.ID, w.vector)
		})

		for i, res := range results {
			if res.Err != nil {
				logger.Warn("failed to store embedding", "food", foods[i].Name, "id", foods[i].ID, "error", res.Err)
				stats.Failed++
				continue
			}
			stats.Embedded++
		}

		logger.Info("embedding batch stored", "batch", batchNo, "embedded", stats.Embedded, "failed", stats.Failed)
	}
}
