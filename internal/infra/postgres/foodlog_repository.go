package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jinford/nutrilog/internal/core/foodlog"
)

// FoodLogRepository は foodlog.RepositoryRW を実装する PostgreSQL リポジトリ。
type FoodLogRepository struct {
	db DBTX
}

// NewFoodLogRepository は新しい FoodLogRepository を返す。
func NewFoodLogRepository(db DBTX) *FoodLogRepository {
	return &FoodLogRepository{db: db}
}

var _ foodlog.RepositoryRW = (*FoodLogRepository)(nil)

const logColumns = "id, user_id, log_date, meal_type, raw_text, items, calories, protein, carbs, fat, created_at"

func (r *FoodLogRepository) GetLog(ctx context.Context, userID string, id uuid.UUID) (*foodlog.Log, error) {
	row := r.db.QueryRow(ctx,
		"SELECT "+logColumns+" FROM food_logs WHERE user_id = $1 AND id = $2",
		userID, UUIDToPgtype(id))

	log, err := scanLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, foodlog.ErrLogNotFound
		}
		return nil, fmt.Errorf("failed to get food log: %w", err)
	}
	return log, nil
}

func (r *FoodLogRepository) ListLogsByDate(ctx context.Context, userID string, date time.Time) ([]*foodlog.Log, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+logColumns+" FROM food_logs WHERE user_id = $1 AND log_date = $2 ORDER BY created_at, id",
		userID, DateToPgtype(date))
	if err != nil {
		return nil, fmt.Errorf("failed to list food logs: %w", err)
	}
	defer rows.Close()

	var logs []*foodlog.Log
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan food log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate food logs: %w", err)
	}
	return logs, nil
}

func (r *FoodLogRepository) InsertLog(ctx context.Context, log *foodlog.Log) error {
	items, err := json.Marshal(log.Items)
	if err != nil {
		return fmt.Errorf("failed to encode log items: %w", err)
	}

	_, err = r.db.Exec(ctx,
		"INSERT INTO food_logs ("+logColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
		UUIDToPgtype(log.ID),
		log.UserID,
		DateToPgtype(log.LogDate),
		StringToNullableText(string(log.MealType)),
		StringToNullableText(log.RawText),
		items,
		log.Calories,
		log.Protein,
		log.Carbs,
		log.Fat,
		TimeToPgtz(log.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert food log: %w", err)
	}
	return nil
}

func (r *FoodLogRepository) DeleteLog(ctx context.Context, userID string, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM food_logs WHERE user_id = $1 AND id = $2", userID, UUIDToPgtype(id))
	if err != nil {
		return fmt.Errorf("failed to delete food log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return foodlog.ErrLogNotFound
	}
	return nil
}

const summaryColumns = "id, user_id, date, totals, updated_at"

func (r *FoodLogRepository) GetDailySummary(ctx context.Context, userID string, date time.Time) (*foodlog.DailySummary, error) {
	row := r.db.QueryRow(ctx,
		"SELECT "+summaryColumns+" FROM daily_summaries WHERE user_id = $1 AND date = $2",
		userID, DateToPgtype(date))

	summary, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, foodlog.ErrSummaryNotFound
		}
		return nil, fmt.Errorf("failed to get daily summary: %w", err)
	}
	return summary, nil
}

func (r *FoodLogRepository) ListDailySummaries(ctx context.Context, userID string, from, to time.Time) ([]*foodlog.DailySummary, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+summaryColumns+" FROM daily_summaries WHERE user_id = $1 AND date BETWEEN $2 AND $3 ORDER BY date",
		userID, DateToPgtype(from), DateToPgtype(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list daily summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*foodlog.DailySummary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily summaries: %w", err)
	}
	return summaries, nil
}

const upsertSummarySQL = `
INSERT INTO daily_summaries (` + summaryColumns + `)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, date) DO UPDATE
SET totals = EXCLUDED.totals, updated_at = EXCLUDED.updated_at
RETURNING ` + summaryColumns

func (r *FoodLogRepository) UpsertDailySummary(ctx context.Context, summary *foodlog.DailySummary) (*foodlog.DailySummary, error) {
	totals, err := json.Marshal(summary.Totals)
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary totals: %w", err)
	}

	row := r.db.QueryRow(ctx, upsertSummarySQL,
		UUIDToPgtype(summary.ID),
		summary.UserID,
		DateToPgtype(summary.Date),
		totals,
		TimeToPgtz(summary.UpdatedAt),
	)

	saved, err := scanSummary(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert daily summary: %w", err)
	}
	return saved, nil
}

func (r *FoodLogRepository) DeleteDailySummary(ctx context.Context, userID string, date time.Time) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM daily_summaries WHERE user_id = $1 AND date = $2", userID, DateToPgtype(date))
	if err != nil {
		return fmt.Errorf("failed to delete daily summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return foodlog.ErrSummaryNotFound
	}
	return nil
}

func scanLog(row pgx.Row) (*foodlog.Log, error) {
	var (
		id        pgtype.UUID
		logDate   pgtype.Date
		mealType  pgtype.Text
		rawText   pgtype.Text
		items     []byte
		createdAt pgtype.Timestamptz
		log       foodlog.Log
	)
	if err := row.Scan(&id, &log.UserID, &logDate, &mealType, &rawText, &items,
		&log.Calories, &log.Protein, &log.Carbs, &log.Fat, &createdAt); err != nil {
		return nil, err
	}

	log.ID = PgtypeToUUID(id)
	log.LogDate = PgtypeToDate(logDate)
	log.MealType = foodlog.MealType(PgtextToString(mealType))
	log.RawText = PgtextToString(rawText)
	log.CreatedAt = createdAt.Time

	if err := json.Unmarshal(items, &log.Items); err != nil {
		return nil, fmt.Errorf("failed to decode log items: %w", err)
	}
	return &log, nil
}

func scanSummary(row pgx.Row) (*foodlog.DailySummary, error) {
	var (
		id        pgtype.UUID
		date      pgtype.Date
		totals    []byte
		updatedAt pgtype.Timestamptz
		summary   foodlog.DailySummary
	)
	if err := row.Scan(&id, &summary.UserID, &date, &totals, &updatedAt); err != nil {
		return nil, err
	}

	summary.ID = PgtypeToUUID(id)
	summary.Date = PgtypeToDate(date)
	summary.UpdatedAt = updatedAt.Time

	if err := json.Unmarshal(totals, &summary.Totals); err != nil {
		return nil, fmt.Errorf("failed to decode summary totals: %w", err)
	}
	return &summary, nil
}
