package foodlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/nutrilog/internal/core/entry"
	"github.com/jinford/nutrilog/internal/core/match"
	"github.com/jinford/nutrilog/internal/core/nutrition"
	"github.com/jinford/nutrilog/internal/core/search"
	"github.com/jinford/nutrilog/internal/shared/batch"
)

// EntryParser は食事の記述を Entry に分解する
type EntryParser interface {
	Parse(ctx context.Context, text string) ([]entry.Entry, error)
}

// CandidateRetriever は食品名ごとの候補を入力と同じ順序で返す
type CandidateRetriever interface {
	RetrieveMany(ctx context.Context, names []string, limit int) []batch.Result[[]nutrition.Candidate]
}

// FoodLookup はIDで食品レコードを取得する
type FoodLookup interface {
	GetFoodByID(ctx context.Context, id int64) (*nutrition.FoodRecord, error)
}

// PipelineRecorder はパイプラインの計測値を記録する
type PipelineRecorder interface {
	RecordItemFailure(stage string)
	ObservePipelineDuration(d time.Duration)
}

type nopPipelineRecorder struct{}

func (nopPipelineRecorder) RecordItemFailure(string)              {}
func (nopPipelineRecorder) ObservePipelineDuration(time.Duration) {}

// Pipeline は 解析 → 候補検索 → 照合 → 換算 → 集計 を実行する
type Pipeline struct {
	parser         EntryParser
	retriever      CandidateRetriever
	selector       match.Selector
	foods          FoodLookup
	candidateLimit int
	maxConcurrency int
	logger         *slog.Logger
	recorder       PipelineRecorder
}

// PipelineOption は Pipeline のオプション設定
type PipelineOption func(*Pipeline)

// WithCandidateLimit は1食品あたりの候補数を設定する
func WithCandidateLimit(limit int) PipelineOption {
	return func(p *Pipeline) {
		p.candidateLimit = limit
	}
}

// WithMaxConcurrency は各段階の並列数の上限を設定する
func WithMaxConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		p.maxConcurrency = n
	}
}

// WithPipelineLogger はロガーを設定する
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPipelineRecorder は計測値の記録先を設定する
func WithPipelineRecorder(recorder PipelineRecorder) PipelineOption {
	return func(p *Pipeline) {
		if recorder != nil {
			p.recorder = recorder
		}
	}
}

// NewPipeline は新しい Pipeline を作成する
func NewPipeline(
	parser EntryParser,
	retriever CandidateRetriever,
	selector match.Selector,
	foods FoodLookup,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		parser:         parser,
		retriever:      retriever,
		selector:       selector,
		foods:          foods,
		candidateLimit: search.DefaultCandidateLimit,
		maxConcurrency: batch.DefaultMaxConcurrency,
		logger:         slog.Default(),
		recorder:       nopPipelineRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run は食事の記述を解析し、食品ごとの照合結果と栄養の合計を返す。
// 個々の食品の失敗は結果の Item に記録され、全体は失敗しない。
// エラーを返すのは解析段階で外部サービスの呼び出し自体が失敗した場合のみ。
func (p *Pipeline) Run(ctx context.Context, text string) (*Result, error) {
	start := time.Now()
	defer func() {
		p.recorder.ObservePipelineDuration(time.Since(start))
	}()

	// 1. 解析
	entries, err := p.parser.Parse(ctx, text)
	if err != nil {
		if errors.Is(err, entry.ErrMalformedResponse) {
			p.recorder.RecordItemFailure(string(StageParse))
			p.logger.Warn("meal description could not be parsed, returning empty result", "error", err)
			return EmptyResult(), nil
		}
		return nil, fmt.Errorf("failed to parse meal description: %w", err)
	}
	if len(entries) == 0 {
		return EmptyResult(), nil
	}

	result := EmptyResult()
	result.Entries = entries

	// 同じ食品名は初出の摂取量を使う
	portions := make(map[string]float64, len(entries))
	for _, e := range entries {
		if _, seen := portions[e.Food]; seen {
			continue
		}
		portions[e.Food] = e.PortionGrams
		result.Foods = append(result.Foods, e.Food)
	}

	items := make(map[string]*Item, len(result.Foods))
	for _, food := range result.Foods {
		items[food] = &Item{
			Food:         food,
			PortionGrams: portions[food],
			Candidates:   []nutrition.Candidate{},
		}
	}

	// 2. 候補検索（全件の完了を待つ）
	p.retrieve(ctx, result.Foods, items)

	// 3. 照合
	p.selectMatches(ctx, result.Foods, items)

	// 4. 換算
	p.scale(ctx, result.Foods, items)

	// 5. 集計
	scaled := make([]nutrition.Nutrients, 0, len(items))
	for _, food := range result.Foods {
		item := items[food]
		if item.Nutrients != nil {
			scaled = append(scaled, *item.Nutrients)
		}
		result.Items[food] = *item
	}
	result.Total = nutrition.Accumulate(scaled...)

	p.logger.Info("meal pipeline completed",
		"entries", len(entries),
		"foods", len(result.Foods),
		"matched", len(scaled),
		"calories", result.Total.Calories,
		"duration", time.Since(start).String(),
	)

	return result, nil
}

func (p *Pipeline) retrieve(ctx context.Context, foods []string, items map[string]*Item) {
	results := p.retriever.RetrieveMany(ctx, foods, p.candidateLimit)

	for i, res := range results {
		item := items[foods[i]]
		if res.Err != nil {
			p.fail(item, StageRetrieve, res.Err)
			continue
		}
		if res.Value != nil {
			item.Candidates = res.Value
		}
	}
}

func (p *Pipeline) selectMatches(ctx context.Context, foods []string, items map[string]*Item) {
	var requests []match.Request
	for _, food := range foods {
		if item := items[food]; len(item.Candidates) > 0 {
			requests = append(requests, match.Request{Term: food, Candidates: item.Candidates})
		}
	}
	if len(requests) == 0 {
		return
	}

	results := match.SelectMany(ctx, p.selector, requests, p.maxConcurrency)
	p.logger.Debug("selection finished", "stats", batch.CalculateStats(results).String())

	for i, res := range results {
		item := items[requests[i].Term]
		if res.Err != nil {
			p.fail(item, StageSelect, res.Err)
			continue
		}

		selection := res.Value
		if !selection.Matched {
			continue
		}

		// 提示していない位置は照合器の異常として先頭候補に倒す
		if selection.Index < 0 || selection.Index >= len(item.Candidates) {
			p.logger.Warn("selection outside offered candidates, using first candidate",
				"food", item.Food,
				"stage", StageSelect,
				"index", selection.Index,
				"candidates", len(item.Candidates),
			)
			selection = match.Selection{Index: 0, Matched: true, Fallback: true}
		}

		chosen := item.Candidates[selection.Index]
		item.Match = &chosen
		item.Fallback = selection.Fallback
	}
}

func (p *Pipeline) scale(ctx context.Context, foods []string, items map[string]*Item) {
	var matched []*Item
	for _, food := range foods {
		if item := items[food]; item.Match != nil {
			matched = append(matched, item)
		}
	}
	if len(matched) == 0 {
		return
	}

	results := batch.Process(ctx, matched, batch.Config{MaxConcurrency: p.maxConcurrency},
		func(ctx context.Context, item *Item) (*nutrition.FoodRecord, error) {
			record, err := p.foods.GetFoodByID(ctx, item.Match.ID)
			if err != nil {
				return nil, err
			}
			if record == nil {
				return nil, fmt.Errorf("food %d not found", item.Match.ID)
			}
			return record, nil
		})

	for i, res := range results {
		item := matched[i]
		if res.Err != nil {
			item.Match = nil
			item.Fallback = false
			p.fail(item, StageLookup, res.Err)
			continue
		}

		record := res.Value
		item.Match.Name = record.Name
		item.Match.Category = record.Category
		scaled := nutrition.Scale(record.Nutrients, item.PortionGrams)
		item.Nutrients = &scaled
	}
}

func (p *Pipeline) fail(item *Item, stage Stage, err error) {
	item.FailedStage = stage
	item.Error = err.Error()
	p.recorder.RecordItemFailure(string(stage))
	p.logger.Warn("food item failed",
		"food", item.Food,
		"stage", stage,
		"error", err,
	)
}
