package search

import (
	"sort"
	"strings"

	"github.com/jinford/nutrilog/internal/core/nutrition"
)

// 字句スコア
const (
	ScoreExact        = 100
	ScorePrefix       = 80
	ScoreSubstring    = 60
	ScoreWordPrefix   = 50
	ScoreWordContains = 30
	ScoreNone         = 0
)

// Score はクエリと候補名の字句的な近さを返す。
// 前後の空白を除去し大文字小文字を区別せず、最初に当てはまった規則のスコアを返す。
func Score(query, candidate string) int {
	q := strings.ToLower(strings.TrimSpace(query))
	c := strings.ToLower(strings.TrimSpace(candidate))

	// 空クエリはどの候補にも前方一致してしまうため一致なしとする
	if q == "" {
		return ScoreNone
	}

	switch {
	case c == q:
		return ScoreExact
	case strings.HasPrefix(c, q):
		return ScorePrefix
	case strings.Contains(c, q):
		return ScoreSubstring
	}

	words := strings.Fields(c)
	for _, w := range words {
		if strings.HasPrefix(w, q) {
			return ScoreWordPrefix
		}
	}
	for _, w := range words {
		if strings.Contains(w, q) {
			return ScoreWordContains
		}
	}

	return ScoreNone
}

// PickBestMatch は最もスコアの高い候補の位置を返す（同点は先勝ち）。
// 最高スコアが0の場合や候補が空の場合は ok=false を返す。
func PickBestMatch(query string, candidates []nutrition.Candidate) (index int, ok bool) {
	best, bestScore := -1, ScoreNone
	for i, c := range candidates {
		if s := Score(query, c.Name); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// SortByScore は候補をスコアの降順に安定ソートする
func SortByScore(query string, candidates []nutrition.Candidate) {
	scores := make(map[int64]int, len(candidates))
	for _, c := range candidates {
		scores[c.ID] = Score(query, c.Name)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return scores[candidates[i].ID] > scores[candidates[j].ID]
	})
}
