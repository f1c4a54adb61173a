package search

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jinford/nutrilog/internal/core/nutrition"
	"github.com/jinford/nutrilog/internal/shared/batch"
)

// Retriever は食品名から候補レコードを検索する。
// 登録された戦略を順に試し、最初に候補を返した戦略の結果を採用する。
type Retriever struct {
	store          Store
	embedder       Embedder
	mode           Mode
	strategies     []Strategy
	maxConcurrency int
	logger         *slog.Logger
	recorder       StrategyRecorder
}

// RetrieverOption は Retriever のオプション設定
type RetrieverOption func(*Retriever)

// WithEmbedder はセマンティック検索に使う Embedder を設定する
func WithEmbedder(embedder Embedder) RetrieverOption {
	return func(r *Retriever) {
		r.embedder = embedder
	}
}

// WithMode は検索モードを設定する
func WithMode(mode Mode) RetrieverOption {
	return func(r *Retriever) {
		r.mode = mode
	}
}

// WithStrategies は戦略リストを明示的に指定する（モードより優先）
func WithStrategies(strategies ...Strategy) RetrieverOption {
	return func(r *Retriever) {
		r.strategies = strategies
	}
}

// WithRetrieverConcurrency は RetrieveMany で同時に検索する食品名の数を設定する
func WithRetrieverConcurrency(n int) RetrieverOption {
	return func(r *Retriever) {
		r.maxConcurrency = n
	}
}

// WithRetrieverLogger はロガーを設定する
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(r *Retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithStrategyRecorder は戦略の実行結果の記録先を設定する
func WithStrategyRecorder(recorder StrategyRecorder) RetrieverOption {
	return func(r *Retriever) {
		if recorder != nil {
			r.recorder = recorder
		}
	}
}

// NewRetriever は新しい Retriever を作成する
func NewRetriever(store Store, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		store:    store,
		mode:     ModeHybrid,
		logger:   slog.Default(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.strategies == nil {
		r.strategies = r.defaultStrategies()
	}

	return r
}

func (r *Retriever) defaultStrategies() []Strategy {
	if r.mode == ModeLexical {
		return []Strategy{NewLexicalStrategy(r.store)}
	}

	// ストアがベクトル検索を実装していない場合、セマンティック戦略は常に利用不可となる
	searcher, _ := r.store.(VectorSearcher)
	var embedder Embedder
	if searcher != nil {
		embedder = r.embedder
	}

	return []Strategy{
		NewSemanticStrategy(searcher, embedder),
		NewFullTextStrategy(r.store),
		NewLexicalStrategy(r.store),
	}
}

// StrategyNames は戦略名を試行順に返す
func (r *Retriever) StrategyNames() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name()
	}
	return names
}

// Retrieve は1つの食品名について候補を検索する
func (r *Retriever) Retrieve(ctx context.Context, name string, limit int) ([]nutrition.Candidate, error) {
	return r.Search(ctx, Query{Text: name}, limit)
}

// Search はクエリについてフォールバックチェーンを実行する。
// 戦略のエラーはログに記録して次の戦略に進むため、全戦略が失敗しても空のリストを返す。
// エラーを返すのは context がキャンセルされた場合のみ。
func (r *Retriever) Search(ctx context.Context, q Query, limit int) ([]nutrition.Candidate, error) {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}

	for _, strategy := range r.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidates, err := strategy.Search(ctx, q, limit)
		switch {
		case errors.Is(err, ErrStrategyUnavailable):
			r.recorder.RecordStrategy(strategy.Name(), OutcomeSkipped)
			continue
		case errors.Is(err, ErrNoSearchTerms):
			r.recorder.RecordStrategy(strategy.Name(), OutcomeSkipped)
			r.logger.Debug("no search terms left after sanitizing",
				"food", q.Text,
				"strategy", strategy.Name(),
			)
			return []nutrition.Candidate{}, nil
		case err != nil:
			r.recorder.RecordStrategy(strategy.Name(), OutcomeError)
			r.logger.Warn("search strategy failed, falling back",
				"food", q.Text,
				"strategy", strategy.Name(),
				"error", err,
			)
			continue
		case len(candidates) == 0:
			r.recorder.RecordStrategy(strategy.Name(), OutcomeEmpty)
			continue
		}

		if len(candidates) > limit {
			candidates = candidates[:limit]
		}
		r.recorder.RecordStrategy(strategy.Name(), OutcomeHit)
		r.logger.Debug("candidates retrieved",
			"food", q.Text,
			"strategy", strategy.Name(),
			"count", len(candidates),
		)
		return candidates, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []nutrition.Candidate{}, nil
}

// prepareQueries は食品名ごとのクエリを作成する。
// セマンティック検索が利用可能な場合は1回のバッチ呼び出しで全件を埋め込む。
// バッチが失敗した場合はベクトルなしのクエリを返し、各戦略の実行時に個別に埋め込む。
func (r *Retriever) prepareQueries(ctx context.Context, names []string) []Query {
	queries := make([]Query, len(names))
	for i, name := range names {
		queries[i] = Query{Text: name}
	}

	embedder := r.semanticEmbedder()
	if len(names) == 0 || embedder == nil {
		return queries
	}

	vectors, err := embedder.BatchEmbed(ctx, names, InputQuery)
	if err != nil || len(vectors) != len(names) {
		r.logger.Warn("batch embedding failed, embedding queries individually",
			"count", len(names),
			"error", err,
		)
		return queries
	}

	for i := range queries {
		queries[i].Vector = vectors[i]
	}
	return queries
}

// RetrieveMany は複数の食品名について並列に候補を検索し、入力と同じ順序で結果を返す。
// 名前ごとの失敗は Result.Err に入り、他の名前の検索は継続する。
func (r *Retriever) RetrieveMany(ctx context.Context, names []string, limit int) []batch.Result[[]nutrition.Candidate] {
	queries := r.prepareQueries(ctx, names)

	results := batch.Process(ctx, queries, batch.Config{MaxConcurrency: r.maxConcurrency},
		func(ctx context.Context, q Query) ([]nutrition.Candidate, error) {
			return r.Search(ctx, q, limit)
		})

	for i := range results {
		if results[i].Err == nil && results[i].Value == nil {
			results[i].Value = []nutrition.Candidate{}
		}
	}

	r.logger.Debug("retrieval finished", "stats", batch.CalculateStats(results).String())
	return results
}

// semanticEmbedder は利用可能なセマンティック戦略の Embedder を返す（なければ nil）
func (r *Retriever) semanticEmbedder() Embedder {
	for _, s := range r.strategies {
		if sem, ok := s.(*SemanticStrategy); ok && sem.Available() {
			return sem.embedder
		}
	}
	return nil
}
