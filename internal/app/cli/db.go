package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/nutrilog/internal/infra/postgres"
)

// DBMigrateAction はスキーマを適用する
func DBMigrateAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := postgres.ApplySchema(ctx, appCtx.Container.Database().Pool); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}

	appCtx.Logger().Info("スキーマを適用しました")
	return nil
}
