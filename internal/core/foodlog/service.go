package foodlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/nutrilog/internal/core/nutrition"
)

// Service は食事記録の保存と集計を提供する
type Service struct {
	repo   Repository
	tx     Transactor
	logger *slog.Logger
	now    func() time.Time
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithServiceLogger はロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock は現在時刻の取得方法を差し替える
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService は新しい Service を作成する
func NewService(repo Repository, tx Transactor, opts ...ServiceOption) *Service {
	s := &Service{
		repo:   repo,
		tx:     tx,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateLogParams は食事記録作成のパラメータ
type CreateLogParams struct {
	UserID   string
	Date     time.Time
	MealType MealType
	RawText  string
	Result   *Result
}

// CreateLog はパイプラインの結果のうち一致した品目を保存し、その日のサマリーを再計算する。
// 保存とサマリー更新は1つのトランザクションで行われる。
func (s *Service) CreateLog(ctx context.Context, params CreateLogParams) (*Log, error) {
	if strings.TrimSpace(params.UserID) == "" {
		return nil, ErrUserIDRequired
	}
	if params.Result == nil {
		return nil, fmt.Errorf("result is required")
	}

	items := make([]LoggedItem, 0, len(params.Result.Foods))
	scaled := make([]nutrition.Nutrients, 0, len(params.Result.Foods))
	for _, item := range params.Result.MatchedItems() {
		items = append(items, LoggedItem{
			FoodID:       item.Match.ID,
			Name:         item.Match.Name,
			Category:     item.Match.Category,
			Query:        item.Food,
			PortionGrams: item.PortionGrams,
			Nutrients:    *item.Nutrients,
		})
		scaled = append(scaled, *item.Nutrients)
	}
	totals := nutrition.Accumulate(scaled...)

	log := &Log{
		ID:        uuid.New(),
		UserID:    params.UserID,
		LogDate:   DateOf(params.Date),
		MealType:  params.MealType,
		RawText:   params.RawText,
		Items:     items,
		Calories:  totals.Calories,
		Protein:   totals.Protein,
		Carbs:     totals.Carbs,
		Fat:       totals.Fat,
		CreatedAt: s.now(),
	}

	err := s.tx.InTx(ctx, func(repo RepositoryRW) error {
		if err := repo.InsertLog(ctx, log); err != nil {
			return fmt.Errorf("failed to insert food log: %w", err)
		}
		if _, err := s.recalculate(ctx, repo, log.UserID, log.LogDate); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("food log created",
		"logID", log.ID.String(),
		"userID", log.UserID,
		"date", log.LogDate.Format(DateLayout),
		"items", len(items),
	)

	return log, nil
}

// DeleteLog は食事記録を削除し、その日のサマリーを再計算する。
// その日の記録がなくなった場合はサマリーも削除される。
func (s *Service) DeleteLog(ctx context.Context, userID string, id uuid.UUID) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUserIDRequired
	}

	return s.tx.InTx(ctx, func(repo RepositoryRW) error {
		log, err := repo.GetLog(ctx, userID, id)
		if err != nil {
			return err
		}
		if err := repo.DeleteLog(ctx, userID, id); err != nil {
			return fmt.Errorf("failed to delete food log: %w", err)
		}
		_, err = s.recalculate(ctx, repo, userID, log.LogDate)
		return err
	})
}

// GetLog は食事記録を取得する
func (s *Service) GetLog(ctx context.Context, userID string, id uuid.UUID) (*Log, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUserIDRequired
	}
	return s.repo.GetLog(ctx, userID, id)
}

// ListLogsByDate は指定日の食事記録を取得する
func (s *Service) ListLogsByDate(ctx context.Context, userID string, date time.Time) ([]*Log, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUserIDRequired
	}
	return s.repo.ListLogsByDate(ctx, userID, DateOf(date))
}

// GetDailySummary は指定日のサマリーを取得する
func (s *Service) GetDailySummary(ctx context.Context, userID string, date time.Time) (*DailySummary, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUserIDRequired
	}
	return s.repo.GetDailySummary(ctx, userID, DateOf(date))
}

// GetWeeklySummary は日付を含む週（月曜始まり）のサマリーを返す
func (s *Service) GetWeeklySummary(ctx context.Context, userID string, date time.Time) (*PeriodSummary, error) {
	start, end := WeekRange(date)
	return s.periodSummary(ctx, userID, start, end)
}

// GetMonthlySummary は日付を含む月のサマリーを返す
func (s *Service) GetMonthlySummary(ctx context.Context, userID string, date time.Time) (*PeriodSummary, error) {
	start, end := MonthRange(date)
	return s.periodSummary(ctx, userID, start, end)
}

// RecalculateDailySummary は指定日のサマリーを記録から再計算する。
// 記録がない場合はサマリーを削除して nil を返す。
func (s *Service) RecalculateDailySummary(ctx context.Context, userID string, date time.Time) (*DailySummary, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUserIDRequired
	}

	var summary *DailySummary
	err := s.tx.InTx(ctx, func(repo RepositoryRW) error {
		var err error
		summary, err = s.recalculate(ctx, repo, userID, DateOf(date))
		return err
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *Service) periodSummary(ctx context.Context, userID string, start, end time.Time) (*PeriodSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUserIDRequired
	}

	days, err := s.repo.ListDailySummaries(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily summaries: %w", err)
	}

	totals := make([]nutrition.Nutrients, len(days))
	for i, d := range days {
		totals[i] = d.Totals
	}
	if days == nil {
		days = []*DailySummary{}
	}

	return &PeriodSummary{
		UserID: userID,
		Start:  start,
		End:    end,
		Days:   days,
		Totals: nutrition.Accumulate(totals...),
	}, nil
}

// recalculate はその日の全記録の全品目を合計してサマリーを更新する
func (s *Service) recalculate(ctx context.Context, repo RepositoryRW, userID string, date time.Time) (*DailySummary, error) {
	if err := repo.LockDay(ctx, userID, date); err != nil {
		return nil, fmt.Errorf("failed to lock daily summary: %w", err)
	}

	logs, err := repo.ListLogsByDate(ctx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list food logs: %w", err)
	}

	if len(logs) == 0 {
		if err := repo.DeleteDailySummary(ctx, userID, date); err != nil && !errors.Is(err, ErrSummaryNotFound) {
			return nil, fmt.Errorf("failed to delete daily summary: %w", err)
		}
		return nil, nil
	}

	summary, err := repo.UpsertDailySummary(ctx, &DailySummary{
		ID:        uuid.New(),
		UserID:    userID,
		Date:      date,
		Totals:    SumLogItems(logs),
		UpdatedAt: s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert daily summary: %w", err)
	}
	return summary, nil
}

// SumLogItems は全記録の全品目の栄養を合計する
func SumLogItems(logs []*Log) nutrition.Nutrients {
	var all []nutrition.Nutrients
	for _, log := range logs {
		for _, item := range log.Items {
			all = append(all, item.Nutrients)
		}
	}
	return nutrition.Accumulate(all...)
}
