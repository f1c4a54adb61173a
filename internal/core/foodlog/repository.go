package foodlog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository は食事記録と日次サマリーの読み取り操作
type Repository interface {
	// GetLog はユーザーの食事記録を取得する（存在しない場合は ErrLogNotFound）
	GetLog(ctx context.Context, userID string, id uuid.UUID) (*Log, error)

	// ListLogsByDate は指定日の食事記録を作成順に取得する
	ListLogsByDate(ctx context.Context, userID string, date time.Time) ([]*Log, error)

	// GetDailySummary は指定日のサマリーを取得する（存在しない場合は ErrSummaryNotFound）
	GetDailySummary(ctx context.Context, userID string, date time.Time) (*DailySummary, error)

	// ListDailySummaries は期間内（両端を含む）のサマリーを日付順に取得する
	ListDailySummaries(ctx context.Context, userID string, from, to time.Time) ([]*DailySummary, error)
}

// RepositoryRW は書き込み操作を含むリポジトリ（トランザクション内で使用）
type RepositoryRW interface {
	Repository

	// InsertLog は食事記録を追加する
	InsertLog(ctx context.Context, log *Log) error

	// DeleteLog は食事記録を削除する
	DeleteLog(ctx context.Context, userID string, id uuid.UUID) error

	// UpsertDailySummary はユーザーと日付で一意なサマリーを作成または更新する
	UpsertDailySummary(ctx context.Context, summary *DailySummary) (*DailySummary, error)

	// DeleteDailySummary は指定日のサマリーを削除する
	DeleteDailySummary(ctx context.Context, userID string, date time.Time) error

	// LockDay はトランザクション終了までユーザーと日付の組をロックする
	LockDay(ctx context.Context, userID string, date time.Time) error
}

// Transactor は RepositoryRW を1つのトランザクション内で実行する
type Transactor interface {
	InTx(ctx context.Context, fn func(repo RepositoryRW) error) error
}
