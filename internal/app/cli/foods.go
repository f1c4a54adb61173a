package cli

import (
	"context"
	"errors"

	"github.com/urfave/cli/v3"

	"github.com/jinford/nutrilog/internal/core/search"
)

// FoodsEmbedAction はベクトル未設定の食品に埋め込みを補完する
func FoodsEmbedAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	embedder := appCtx.Container.Embedder
	if embedder == nil {
		return errors.New("埋め込みが無効な設定です（SEARCH_MODE=hybrid かつ SEARCH_ENABLE_EMBEDDINGS=true が必要）")
	}

	batchSize := int(cmd.Int("batch"))
	if batchSize <= 0 {
		batchSize = appCtx.Config.OpenAI.EmbeddingBatchSize
	}

	stats, err := search.BackfillEmbeddings(ctx, appCtx.Container.Foods, embedder, batchSize, appCtx.Logger())
	if err != nil {
		return err
	}
	return printJSON(output(cmd), stats)
}
