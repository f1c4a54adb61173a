package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/nutrilog/internal/core/foodlog"
	"github.com/jinford/nutrilog/internal/infra/postgres"
)

// TransactionProvider は pgx のトランザクションをコールバックの背後に隠す。
// コールバックにはトランザクションに束縛されたリポジトリが渡される。
type TransactionProvider struct {
	pool *pgxpool.Pool
}

// NewTransactionProvider は新しい TransactionProvider を作成する
func NewTransactionProvider(pool *pgxpool.Pool) *TransactionProvider {
	return &TransactionProvider{pool: pool}
}

// Adapter は1つのトランザクション内で動くリポジトリの束
type Adapter struct {
	FoodLogs *postgres.FoodLogRepository
}

func newAdapter(tx pgx.Tx) *Adapter {
	return &Adapter{
		FoodLogs: postgres.NewFoodLogRepository(tx),
	}
}

// Transact はトランザクションを開始し、Adapter を fn に渡す。
// fn がエラーを返した場合はロールバックする。
func Transact[T any](ctx context.Context, p *TransactionProvider, fn func(*Adapter) (T, error)) (T, error) {
	var zero T
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return zero, fmt.Errorf("failed to begin transaction: %w", err)
	}

	result, err := fn(newAdapter(tx))
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return zero, fmt.Errorf("tx rollback failed: %v (original err: %w)", rbErr, err)
		}
		return zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

// InTx は foodlog.Transactor を実装する
func (p *TransactionProvider) InTx(ctx context.Context, fn func(repo foodlog.RepositoryRW) error) error {
	_, err := Transact(ctx, p, func(a *Adapter) (struct{}, error) {
		return struct{}{}, fn(a.FoodLogs)
	})
	return err
}

var _ foodlog.Transactor = (*TransactionProvider)(nil)
