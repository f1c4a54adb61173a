package search

import (
	"errors"
	"fmt"
)

// DefaultCandidateLimit は1食品あたりの候補数のデフォルト値
const DefaultCandidateLimit = 5

// Mode は候補検索のモード
type Mode string

const (
	// ModeHybrid はセマンティック → 全文 → 部分一致の順にフォールバックする
	ModeHybrid Mode = "hybrid"
	// ModeLexical は部分一致検索のみを使用する
	ModeLexical Mode = "lexical"
)

// ParseMode は文字列から Mode を解析する
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeHybrid, "":
		return ModeHybrid, nil
	case ModeLexical:
		return ModeLexical, nil
	default:
		return "", fmt.Errorf("unknown search mode: %q", s)
	}
}

// InputType は埋め込み対象の種別（プロバイダへのヒント）
type InputType string

const (
	InputDocument InputType = "document"
	InputQuery    InputType = "query"
)

// Query は1食品名分の検索クエリ
type Query struct {
	Text   string
	Vector []float32 // 事前に埋め込み済みの場合のみ設定
}

// StrategyOutcome は検索戦略の実行結果の分類
type StrategyOutcome string

const (
	OutcomeHit     StrategyOutcome = "hit"
	OutcomeEmpty   StrategyOutcome = "empty"
	OutcomeError   StrategyOutcome = "error"
	OutcomeSkipped StrategyOutcome = "skipped"
)

var (
	// ErrNoSearchTerms はサニタイズ後に検索語が残らなかった場合のエラー
	// 戦略がこのエラーを返すとフォールバックチェーンは打ち切られる
	ErrNoSearchTerms = errors.New("no search terms")

	// ErrStrategyUnavailable は戦略の前提（埋め込みやベクトル索引）が揃っていない場合のエラー
	ErrStrategyUnavailable = errors.New("strategy unavailable")
)
