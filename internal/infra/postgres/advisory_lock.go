package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/jinford/nutrilog/internal/core/foodlog"
)

// LockID は文字列の組からアドバイザリロックのIDを生成する
func LockID(parts ...string) int64 {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return int64(binary.BigEndian.Uint64(h.Sum(nil)[:8]))
}

// AcquireXactLock はトランザクションスコープのアドバイザリロックを取得する。
// ロックはコミットまたはロールバックで解放される。
func AcquireXactLock(ctx context.Context, db DBTX, lockID int64) error {
	if _, err := db.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", lockID); err != nil {
		return fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	return nil
}

// LockDay は同じユーザー・日付のサマリー再計算を直列化する
func (r *FoodLogRepository) LockDay(ctx context.Context, userID string, date time.Time) error {
	return AcquireXactLock(ctx, r.db, LockID("daily_summary", userID, foodlog.DateOf(date).Format(foodlog.DateLayout)))
}
