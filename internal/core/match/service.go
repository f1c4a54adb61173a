package match

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jinford/nutrilog/internal/core/llm"
	"github.com/jinford/nutrilog/internal/core/nutrition"
	"github.com/jinford/nutrilog/internal/core/search"
	"github.com/jinford/nutrilog/internal/shared/batch"
)

// LLMSelector はLLMに最良の候補を選ばせる Selector
type LLMSelector struct {
	generator llm.Generator
	model     string
	maxTokens int
	logger    *slog.Logger
	recorder  Recorder
}

// LLMSelectorOption は LLMSelector のオプション設定
type LLMSelectorOption func(*LLMSelector)

// WithSelectorModel は使用するモデルを指定する
func WithSelectorModel(model string) LLMSelectorOption {
	return func(s *LLMSelector) {
		s.model = model
	}
}

// WithSelectorLogger はロガーを設定する
func WithSelectorLogger(logger *slog.Logger) LLMSelectorOption {
	return func(s *LLMSelector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSelectionRecorder は照合結果の記録先を設定する
func WithSelectionRecorder(recorder Recorder) LLMSelectorOption {
	return func(s *LLMSelector) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

// NewLLMSelector は新しい LLMSelector を作成する
func NewLLMSelector(generator llm.Generator, opts ...LLMSelectorOption) *LLMSelector {
	s := &LLMSelector{
		generator: generator,
		maxTokens: 8,
		logger:    slog.Default(),
		recorder:  nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select は候補から最良の1件を選ぶ。
// 候補が0件なら一致なし、1件ならその候補を外部呼び出しなしで返す。
// 2件以上の場合はLLMに1始まりの番号を問い合わせ、不正な応答は先頭候補にフォールバックする。
func (s *LLMSelector) Select(ctx context.Context, term string, candidates []nutrition.Candidate) (Selection, error) {
	switch len(candidates) {
	case 0:
		s.recorder.RecordSelection(OutcomeNoCandidates)
		return NoMatch(), nil
	case 1:
		s.recorder.RecordSelection(OutcomeSingle)
		return Matched(0), nil
	}

	resp, err := s.generator.GenerateCompletion(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			llm.SystemMessage(systemPrompt),
			llm.UserMessage(BuildUserPrompt(term, candidates)),
		},
		Model:       s.model,
		Temperature: 0,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		s.recorder.RecordSelection(OutcomeError)
		return NoMatch(), fmt.Errorf("failed to generate selection: %w", err)
	}

	selection := ParseSelection(resp.Content, len(candidates))
	switch {
	case selection.Fallback:
		s.recorder.RecordSelection(OutcomeFallback)
		s.logger.Warn("invalid selector response, falling back to first candidate",
			"food", term,
			"response", resp.Content,
			"candidates", len(candidates),
		)
	case !selection.Matched:
		s.recorder.RecordSelection(OutcomeNone)
	default:
		s.recorder.RecordSelection(OutcomeSelected)
	}

	return selection, nil
}

// ParseSelection はLLMの応答を検証して Selection に変換する。
// 整数として解釈できない、負、候補数を超える場合は先頭候補へのフォールバックとなる。
// 0 は一致なしを表す。
func ParseSelection(content string, count int) Selection {
	s := strings.TrimSpace(content)
	s = strings.TrimSuffix(s, ".")

	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > count {
		return Selection{Index: 0, Matched: true, Fallback: true}
	}
	if n == 0 {
		return NoMatch()
	}
	return Matched(n - 1)
}

// LexicalSelector は字句スコアで最良の候補を選ぶ Selector（外部呼び出しなし）
type LexicalSelector struct {
	recorder Recorder
}

// NewLexicalSelector は新しい LexicalSelector を作成する
func NewLexicalSelector(recorder Recorder) *LexicalSelector {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &LexicalSelector{recorder: recorder}
}

// Select は字句スコアが最大の候補を選ぶ。最大スコアが0なら一致なし
func (s *LexicalSelector) Select(ctx context.Context, term string, candidates []nutrition.Candidate) (Selection, error) {
	if len(candidates) == 0 {
		s.recorder.RecordSelection(OutcomeNoCandidates)
		return NoMatch(), nil
	}

	index, ok := search.PickBestMatch(term, candidates)
	if !ok {
		s.recorder.RecordSelection(OutcomeNone)
		return NoMatch(), nil
	}
	s.recorder.RecordSelection(OutcomeSelected)
	return Matched(index), nil
}

// SelectMany は複数の照合を並列に実行し、入力順に結果を返す。
// 個々の失敗は他の照合に影響しない。
func SelectMany(ctx context.Context, selector Selector, requests []Request, maxConcurrency int) []batch.Result[Selection] {
	return batch.Process(ctx, requests, batch.Config{MaxConcurrency: maxConcurrency},
		func(ctx context.Context, req Request) (Selection, error) {
			return selector.Select(ctx, req.Term, req.Candidates)
		})
}

var (
	_ Selector = (*LLMSelector)(nil)
	_ Selector = (*LexicalSelector)(nil)
)
