package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/jinford/nutrilog/internal/core/nutrition"
)

// 戦略名
const (
	StrategySemantic = "semantic"
	StrategyFullText = "fulltext"
	StrategyLexical  = "lexical"
)

// Strategy は候補検索の1手段。Retriever は登録順に試行する。
type Strategy interface {
	Name() string
	Search(ctx context.Context, q Query, limit int) ([]nutrition.Candidate, error)
}

// SemanticStrategy は埋め込みベクトルの距離で検索する
type SemanticStrategy struct {
	searcher VectorSearcher
	embedder Embedder
}

// NewSemanticStrategy は SemanticStrategy を作成する（どちらかが nil の場合は常に利用不可）
func NewSemanticStrategy(searcher VectorSearcher, embedder Embedder) *SemanticStrategy {
	return &SemanticStrategy{searcher: searcher, embedder: embedder}
}

func (s *SemanticStrategy) Name() string { return StrategySemantic }

// Available はベクトル検索の前提が揃っているかを返す
func (s *SemanticStrategy) Available() bool {
	return s.searcher != nil && s.embedder != nil
}

func (s *SemanticStrategy) Search(ctx context.Context, q Query, limit int) ([]nutrition.Candidate, error) {
	if !s.Available() {
		return nil, ErrStrategyUnavailable
	}

	vector := q.Vector
	if vector == nil {
		v, err := s.embedder.Embed(ctx, q.Text, InputQuery)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		vector = v
	}

	serialized, err := SerializeEmbedding(vector)
	if err != nil {
		return nil, err
	}

	return s.searcher.VectorSearch(ctx, serialized, limit)
}

// FullTextStrategy は前方一致ANDの全文検索を行う
type FullTextStrategy struct {
	store Store
}

// NewFullTextStrategy は FullTextStrategy を作成する
func NewFullTextStrategy(store Store) *FullTextStrategy {
	return &FullTextStrategy{store: store}
}

func (s *FullTextStrategy) Name() string { return StrategyFullText }

func (s *FullTextStrategy) Search(ctx context.Context, q Query, limit int) ([]nutrition.Candidate, error) {
	prefixQuery := BuildPrefixQuery(q.Text)
	if prefixQuery == "" {
		return nil, ErrNoSearchTerms
	}
	return s.store.FullTextSearch(ctx, prefixQuery, limit)
}

// LexicalStrategy は部分一致で検索し、字句スコア順に並べ替える
type LexicalStrategy struct {
	store Store
}

// NewLexicalStrategy は LexicalStrategy を作成する
func NewLexicalStrategy(store Store) *LexicalStrategy {
	return &LexicalStrategy{store: store}
}

func (s *LexicalStrategy) Name() string { return StrategyLexical }

func (s *LexicalStrategy) Search(ctx context.Context, q Query, limit int) ([]nutrition.Candidate, error) {
	name := strings.TrimSpace(q.Text)
	if name == "" {
		return nil, ErrNoSearchTerms
	}

	candidates, err := s.store.SubstringSearch(ctx, name, limit)
	if err != nil {
		return nil, err
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	SortByScore(name, candidates)
	return candidates, nil
}
