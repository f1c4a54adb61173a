package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	corellm "github.com/jinford/nutrilog/internal/core/llm"
)

// DefaultMaxConcurrent は同時実行数の既定値
const DefaultMaxConcurrent = 4

// RateLimiter は1分あたりのリクエスト数と同時実行数を制限する。
// トークンは経過時間に比例して補充される。
type RateLimiter struct {
	mu sync.Mutex

	perMinute    int
	tokens       float64
	lastRefill   time.Time
	waiting      int
	pollInterval time.Duration
	now          func() time.Time

	slots chan struct{}
}

// RateLimiterOption は RateLimiter のオプション設定
type RateLimiterOption func(*RateLimiter)

// WithMaxConcurrent は同時実行数の上限を設定する
func WithMaxConcurrent(n int) RateLimiterOption {
	return func(rl *RateLimiter) {
		if n > 0 {
			rl.slots = make(chan struct{}, n)
		}
	}
}

// withClock は時刻の取得方法を差し替える（テスト用）
func withClock(now func() time.Time) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.now = now
		rl.lastRefill = now()
	}
}

// withPollInterval はトークン待ちの再確認間隔を差し替える（テスト用）
func withPollInterval(d time.Duration) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.pollInterval = d
	}
}

// NewRateLimiter は新しい RateLimiter を作成する
func NewRateLimiter(requestsPerMinute int, opts ...RateLimiterOption) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	rl := &RateLimiter{
		perMinute:    requestsPerMinute,
		tokens:       float64(requestsPerMinute),
		lastRefill:   time.Now(),
		pollInterval: 250 * time.Millisecond,
		now:          time.Now,
		slots:        make(chan struct{}, DefaultMaxConcurrent),
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Acquire は実行枠とトークンを取得するまで待機する。
// 成功した場合は Release を必ず呼ぶこと。
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	select {
	case rl.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		rl.mu.Lock()
		rl.refill()
		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}
		rl.waiting++
		rl.mu.Unlock()

		timer := time.NewTimer(rl.pollInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			rl.mu.Lock()
			rl.waiting--
			rl.mu.Unlock()
			<-rl.slots
			return ctx.Err()
		}

		rl.mu.Lock()
		rl.waiting--
		rl.mu.Unlock()
	}
}

// Release は実行枠を返却する
func (rl *RateLimiter) Release() {
	<-rl.slots
}

// refill はロック取得済みの状態で呼ぶ
func (rl *RateLimiter) refill() {
	now := rl.now()
	elapsed := now.Sub(rl.lastRefill)
	if elapsed <= 0 {
		return
	}
	rl.tokens = min(rl.tokens+elapsed.Minutes()*float64(rl.perMinute), float64(rl.perMinute))
	rl.lastRefill = now
}

// Status は現在の状態を返す
func (rl *RateLimiter) Status() RateLimiterStatus {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()

	return RateLimiterStatus{
		RequestsPerMinute: rl.perMinute,
		AvailableTokens:   int(rl.tokens),
		WaitingRequests:   rl.waiting,
		ActiveRequests:    len(rl.slots),
		MaxConcurrent:     cap(rl.slots),
	}
}

// RateLimiterStatus はレート制限の状態
type RateLimiterStatus struct {
	RequestsPerMinute int
	AvailableTokens   int
	WaitingRequests   int
	ActiveRequests    int
	MaxConcurrent     int
}

func (s RateLimiterStatus) String() string {
	return fmt.Sprintf(
		"RateLimiter: rate=%d/min, available=%d, waiting=%d, active=%d/%d",
		s.RequestsPerMinute,
		s.AvailableTokens,
		s.WaitingRequests,
		s.ActiveRequests,
		s.MaxConcurrent,
	)
}

// ThrottledGenerator はレート制限付きの corellm.Generator
type ThrottledGenerator struct {
	next    corellm.Generator
	limiter *RateLimiter
}

// NewThrottledGenerator は next をレート制限で包む
func NewThrottledGenerator(next corellm.Generator, limiter *RateLimiter) *ThrottledGenerator {
	return &ThrottledGenerator{next: next, limiter: limiter}
}

// GenerateCompletion は実行枠を取得してから next を呼び出す
func (g *ThrottledGenerator) GenerateCompletion(ctx context.Context, req corellm.CompletionRequest) (corellm.CompletionResponse, error) {
	if err := g.limiter.Acquire(ctx); err != nil {
		return corellm.CompletionResponse{}, fmt.Errorf("rate limiter wait failed: %w", err)
	}
	defer g.limiter.Release()

	return g.next.GenerateCompletion(ctx, req)
}

// Status はレート制限の状態を返す
func (g *ThrottledGenerator) Status() RateLimiterStatus {
	return g.limiter.Status()
}

// インターフェース実装の確認
var _ corellm.Generator = (*ThrottledGenerator)(nil)
