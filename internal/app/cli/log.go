package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/jinford/nutrilog/internal/core/foodlog"
)

// LogAction は食事の記述を解析して結果を表示し、--save 指定時は保存する
func LogAction(ctx context.Context, cmd *cli.Command) error {
	text := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if text == "" {
		return errors.New("食事の内容を引数で指定してください")
	}

	save := cmd.Bool("save")
	userID := strings.TrimSpace(cmd.String("user"))
	if save && userID == "" {
		return errors.New("--save には --user が必要です")
	}
	date, err := parseDateFlag(cmd.String("date"), time.Now())
	if err != nil {
		return err
	}
	mealType, err := foodlog.ParseMealType(cmd.String("meal"))
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Container.Pipeline.Run(ctx, text)
	if err != nil {
		return fmt.Errorf("食事の解析に失敗: %w", err)
	}

	if !save {
		return printJSON(output(cmd), result)
	}

	log, err := appCtx.Container.FoodLogs.CreateLog(ctx, foodlog.CreateLogParams{
		UserID:   userID,
		Date:     date,
		MealType: mealType,
		RawText:  text,
		Result:   result,
	})
	if err != nil {
		return fmt.Errorf("食事記録の保存に失敗: %w", err)
	}

	return printJSON(output(cmd), map[string]any{
		"result": result,
		"log":    log,
	})
}

// LogDeleteAction は食事記録を削除し、その日のサマリーを再計算する
func LogDeleteAction(ctx context.Context, cmd *cli.Command) error {
	id, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("不正な記録ID: %w", err)
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.FoodLogs.DeleteLog(ctx, cmd.String("user"), id); err != nil {
		return fmt.Errorf("食事記録の削除に失敗: %w", err)
	}

	appCtx.Logger().Info("食事記録を削除しました", "logID", id.String())
	return nil
}
