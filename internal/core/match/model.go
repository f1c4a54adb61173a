package match

import (
	"context"

	"github.com/jinford/nutrilog/internal/core/nutrition"
)

// Mode は照合方式
type Mode string

const (
	// ModeLLM はLLMで最良の候補を選ぶ
	ModeLLM Mode = "llm"
	// ModeLexical は字句スコアで最良の候補を選ぶ（外部呼び出しなし）
	ModeLexical Mode = "lexical"
)

// Selection は照合結果
type Selection struct {
	// Index は選ばれた候補の位置（0始まり）。Matched が false の場合は無意味
	Index   int
	Matched bool
	// Fallback は不正な応答のため先頭候補に倒したことを示す
	Fallback bool
}

// NoMatch は一致なしの結果
func NoMatch() Selection {
	return Selection{}
}

// Matched は位置 index の候補を選んだ結果
func Matched(index int) Selection {
	return Selection{Index: index, Matched: true}
}

// Request は1件分の照合リクエスト
type Request struct {
	Term       string
	Candidates []nutrition.Candidate
}

// Selector は検索語と候補リストから最良の候補を1つ選ぶ
type Selector interface {
	Select(ctx context.Context, term string, candidates []nutrition.Candidate) (Selection, error)
}

// Recorder は照合結果を記録する
type Recorder interface {
	RecordSelection(outcome string)
}

// 照合結果の分類
const (
	OutcomeNoCandidates = "no_candidates"
	OutcomeSingle       = "single"
	OutcomeSelected     = "selected"
	OutcomeNone         = "none"
	OutcomeFallback     = "fallback"
	OutcomeError        = "error"
)

type nopRecorder struct{}

func (nopRecorder) RecordSelection(string) {}
