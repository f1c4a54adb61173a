package batch

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultMaxConcurrency は同時実行数が未指定の場合の上限
const DefaultMaxConcurrency = 8

// Config はバッチ処理の設定
type Config struct {
	// MaxConcurrency は同時実行数の上限
	MaxConcurrency int
	// ProgressCallback は1件完了するごとに呼ばれる（任意）
	ProgressCallback func(progress Progress)
}

// Result は1件分の処理結果
type Result[T any] struct {
	Value    T
	Err      error
	Duration time.Duration
}

// Progress はバッチ処理の進捗状況
type Progress struct {
	Total       int
	Completed   int
	Failed      int
	ElapsedTime time.Duration
}

// String はプログレスを文字列表現で返す
func (p Progress) String() string {
	percentage := 0.0
	if p.Total > 0 {
		percentage = float64(p.Completed) / float64(p.Total) * 100
	}
	return fmt.Sprintf(
		"Progress: %d/%d (%.1f%%) | Failed: %d | Elapsed: %s",
		p.Completed,
		p.Total,
		percentage,
		p.Failed,
		p.ElapsedTime.Round(time.Millisecond),
	)
}

// Process は items を並列に処理し、入力と同じ順序で結果を返す。
// 一部が失敗しても残りは継続され、全件が完了（成功・失敗・キャンセル）するまで戻らない。
// contextがキャンセルされた場合、未開始の項目は ctx.Err() で失敗として記録される。
func Process[In, Out any](ctx context.Context, items []In, cfg Config, fn func(ctx context.Context, item In) (Out, error)) []Result[Out] {
	total := len(items)
	results := make([]Result[Out], total)
	if total == 0 {
		return results
	}

	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}

	var mu sync.Mutex
	completed, failed := 0, 0
	startTime := time.Now()

	record := func(index int, result Result[Out]) {
		results[index] = result

		mu.Lock()
		completed++
		if result.Err != nil {
			failed++
		}
		progress := Progress{
			Total:       total,
			Completed:   completed,
			Failed:      failed,
			ElapsedTime: time.Since(startTime),
		}
		mu.Unlock()

		if cfg.ProgressCallback != nil {
			cfg.ProgressCallback(progress)
		}
	}

	semaphore := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)

		go func(index int, item In) {
			defer wg.Done()

			// セマフォを取得（並列度を制限）
			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				record(index, Result[Out]{Err: ctx.Err()})
				return
			}

			start := time.Now()
			value, err := fn(ctx, item)
			record(index, Result[Out]{Value: value, Err: err, Duration: time.Since(start)})
		}(i, item)
	}

	wg.Wait()

	return results
}

// Stats はバッチ処理の統計情報
type Stats struct {
	Total         int
	SuccessCount  int
	FailureCount  int
	TotalDuration time.Duration
	MaxDuration   time.Duration
}

// CalculateStats は結果から統計情報を計算する
func CalculateStats[T any](results []Result[T]) Stats {
	stats := Stats{Total: len(results)}
	for _, r := range results {
		if r.Err != nil {
			stats.FailureCount++
			continue
		}
		stats.SuccessCount++
		stats.TotalDuration += r.Duration
		if r.Duration > stats.MaxDuration {
			stats.MaxDuration = r.Duration
		}
	}
	return stats
}

// String は統計情報を文字列表現で返す
func (s Stats) String() string {
	return fmt.Sprintf(
		"Batch Stats: Total=%d, Success=%d, Failed=%d, MaxDuration=%s",
		s.Total,
		s.SuccessCount,
		s.FailureCount,
		s.MaxDuration.Round(time.Millisecond),
	)
}
