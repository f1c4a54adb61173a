package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jinford/nutrilog/internal/core/foodlog"
)

// SummaryDayAction は日次サマリーを表示する
func SummaryDayAction(ctx context.Context, cmd *cli.Command) error {
	return runSummary(ctx, cmd, func(ctx context.Context, svc *foodlog.Service, userID string, date time.Time) (any, error) {
		summary, err := svc.GetDailySummary(ctx, userID, date)
		if errors.Is(err, foodlog.ErrSummaryNotFound) {
			return map[string]any{"userId": userID, "date": date, "found": false}, nil
		}
		return summary, err
	})
}

// SummaryWeekAction は週（月曜始まり）のサマリーを表示する
func SummaryWeekAction(ctx context.Context, cmd *cli.Command) error {
	return runSummary(ctx, cmd, func(ctx context.Context, svc *foodlog.Service, userID string, date time.Time) (any, error) {
		return svc.GetWeeklySummary(ctx, userID, date)
	})
}

// SummaryMonthAction は月のサマリーを表示する
func SummaryMonthAction(ctx context.Context, cmd *cli.Command) error {
	return runSummary(ctx, cmd, func(ctx context.Context, svc *foodlog.Service, userID string, date time.Time) (any, error) {
		return svc.GetMonthlySummary(ctx, userID, date)
	})
}

// SummaryRecalculateAction は日次サマリーを記録から再計算する
func SummaryRecalculateAction(ctx context.Context, cmd *cli.Command) error {
	return runSummary(ctx, cmd, func(ctx context.Context, svc *foodlog.Service, userID string, date time.Time) (any, error) {
		summary, err := svc.RecalculateDailySummary(ctx, userID, date)
		if err == nil && summary == nil {
			return map[string]any{"userId": userID, "date": date, "found": false}, nil
		}
		return summary, err
	})
}

type summaryFunc func(ctx context.Context, svc *foodlog.Service, userID string, date time.Time) (any, error)

func runSummary(ctx context.Context, cmd *cli.Command, fn summaryFunc) error {
	date, err := parseDateFlag(cmd.String("date"), time.Now())
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := fn(ctx, appCtx.Container.FoodLogs, cmd.String("user"), date)
	if err != nil {
		return fmt.Errorf("サマリーの取得に失敗: %w", err)
	}
	return printJSON(output(cmd), result)
}
