package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/nutrilog/internal/core/nutrition"
	"github.com/jinford/nutrilog/internal/core/search"
)

// SearchAction は候補検索のみを実行して結果を表示する
func SearchAction(ctx context.Context, cmd *cli.Command) error {
	name := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if name == "" {
		return errors.New("食品名を引数で指定してください")
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	retriever := appCtx.Container.Retriever
	if mode := cmd.String("mode"); mode != "" {
		m, err := search.ParseMode(mode)
		if err != nil {
			return err
		}
		opts := []search.RetrieverOption{
			search.WithMode(m),
			search.WithRetrieverLogger(appCtx.Logger()),
			search.WithStrategyRecorder(appCtx.Container.Metrics),
		}
		if appCtx.Container.Embedder != nil {
			opts = append(opts, search.WithEmbedder(appCtx.Container.Embedder))
		}
		retriever = search.NewRetriever(appCtx.Container.Foods, opts...)
	}

	candidates, err := retriever.Retrieve(ctx, name, int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("検索に失敗: %w", err)
	}
	if candidates == nil {
		candidates = []nutrition.Candidate{}
	}

	return printJSON(output(cmd), candidates)
}
