package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/nutrilog/internal/core/entry"
	"github.com/jinford/nutrilog/internal/core/foodlog"
	corellm "github.com/jinford/nutrilog/internal/core/llm"
	"github.com/jinford/nutrilog/internal/core/match"
	"github.com/jinford/nutrilog/internal/core/search"
	infrallm "github.com/jinford/nutrilog/internal/infra/llm"
	"github.com/jinford/nutrilog/internal/infra/openai"
	"github.com/jinford/nutrilog/internal/infra/postgres"
	"github.com/jinford/nutrilog/internal/platform/config"
	"github.com/jinford/nutrilog/internal/platform/database"
	"github.com/jinford/nutrilog/internal/platform/metrics"
	"github.com/jinford/nutrilog/internal/platform/tokens"
)

// ServiceContainer はアプリケーションの依存関係を保持する
type ServiceContainer struct {
	Pipeline  *foodlog.Pipeline
	Retriever *search.Retriever
	FoodLogs  *foodlog.Service
	Foods     *postgres.FoodRepository
	// Embedder はセマンティック検索が無効な構成では nil
	Embedder search.Embedder
	Metrics  *metrics.Metrics
	Limiter  *infrallm.RateLimiter

	logger   *slog.Logger
	database *database.Database
}

type containerOptions struct {
	logger    *slog.Logger
	generator corellm.Generator
	embedder  search.Embedder
	metrics   *metrics.Metrics
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerGenerator はチャット補完クライアントを差し替える
func WithContainerGenerator(generator corellm.Generator) ContainerOption {
	return func(opts *containerOptions) {
		opts.generator = generator
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder search.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerMetrics はメトリクスの記録先を差し替える
func WithContainerMetrics(m *metrics.Metrics) ContainerOption {
	return func(opts *containerOptions) {
		opts.metrics = m
	}
}

// NewContainer は設定からデータベースに接続し、コンテナを生成する
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	db, err := database.New(ctx, database.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}

	c, err := NewContainerWithDB(cfg, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// NewContainerWithDB は既存の Database を受け取りコンテナを生成する
func NewContainerWithDB(cfg *config.Config, db *database.Database, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.metrics == nil {
		options.metrics = metrics.New()
	}
	logger := options.logger
	m := options.metrics

	// Generator (OpenAI) + レート制限
	generator := options.generator
	if generator == nil {
		client, err := openai.NewClient(
			cfg.OpenAI.APIKey,
			openai.WithChatModel(cfg.OpenAI.ChatModel),
			openai.WithBaseURL(cfg.OpenAI.BaseURL),
			openai.WithTimeout(cfg.LLM.Timeout),
		)
		if err != nil {
			return nil, fmt.Errorf("OpenAI クライアント初期化に失敗しました: %w", err)
		}
		generator = client
	}
	limiter := infrallm.NewRateLimiter(
		cfg.LLM.RequestsPerMinute,
		infrallm.WithMaxConcurrent(cfg.LLM.MaxConcurrentCalls),
	)
	throttled := infrallm.NewThrottledGenerator(generator, limiter)

	// Embedder (OpenAI)。無効な構成では nil インターフェースのままにする
	var embedder search.Embedder
	if cfg.UsesEmbeddings() {
		if options.embedder != nil {
			embedder = options.embedder
		} else {
			e, err := openai.NewEmbedder(
				cfg.OpenAI.APIKey,
				openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
				openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
				openai.WithEmbeddingBatchSize(cfg.OpenAI.EmbeddingBatchSize),
				openai.WithInputType(cfg.OpenAI.SendInputType),
				openai.WithEmbeddingBaseURL(cfg.OpenAI.BaseURL),
			)
			if err != nil {
				return nil, fmt.Errorf("Embedder 初期化に失敗しました: %w", err)
			}
			embedder = e
		}
	}

	// nil の Counter は文字数による推定で切り詰める
	counter, err := tokens.NewCounter()
	if err != nil {
		logger.Warn("token encoding unavailable, falling back to estimate", "error", err)
	}

	// Repository (PostgreSQL)
	foods := postgres.NewFoodRepository(db.Pool)
	foodLogs := postgres.NewFoodLogRepository(db.Pool)
	txProvider := database.NewTransactionProvider(db.Pool)

	// EntryParser
	parser := entry.NewParser(
		metrics.InstrumentGenerator(throttled, m, "parse"),
		entry.WithParserModel(cfg.OpenAI.ChatModel),
		entry.WithParserTemperature(cfg.LLM.ParserTemperature),
		entry.WithParserMaxTokens(cfg.LLM.ParserMaxTokens),
		entry.WithInputTokenLimit(cfg.LLM.MaxInputTokens, counter),
		entry.WithParserLogger(logger),
	)

	// CandidateRetriever
	searchMode, err := search.ParseMode(cfg.Search.Mode)
	if err != nil {
		return nil, err
	}
	retrieverOpts := []search.RetrieverOption{
		search.WithMode(searchMode),
		search.WithRetrieverConcurrency(cfg.Pipeline.MaxConcurrency),
		search.WithRetrieverLogger(logger),
		search.WithStrategyRecorder(m),
	}
	if embedder != nil {
		retrieverOpts = append(retrieverOpts, search.WithEmbedder(embedder))
	}
	retriever := search.NewRetriever(foods, retrieverOpts...)

	// MatchSelector
	selector, err := newSelector(cfg, throttled, m, logger)
	if err != nil {
		return nil, err
	}

	pipeline := foodlog.NewPipeline(
		parser,
		retriever,
		selector,
		foods,
		foodlog.WithCandidateLimit(cfg.Search.CandidateLimit),
		foodlog.WithMaxConcurrency(cfg.Pipeline.MaxConcurrency),
		foodlog.WithPipelineLogger(logger),
		foodlog.WithPipelineRecorder(m),
	)

	service := foodlog.NewService(foodLogs, txProvider, foodlog.WithServiceLogger(logger))

	return &ServiceContainer{
		Pipeline:  pipeline,
		Retriever: retriever,
		FoodLogs:  service,
		Foods:     foods,
		Embedder:  embedder,
		Metrics:   m,
		Limiter:   limiter,
		logger:    logger,
		database:  db,
	}, nil
}

func newSelector(cfg *config.Config, generator corellm.Generator, m *metrics.Metrics, logger *slog.Logger) (match.Selector, error) {
	switch match.Mode(cfg.Match.Mode) {
	case match.ModeLexical:
		return match.NewLexicalSelector(m), nil
	case match.ModeLLM, "":
		model := cfg.Match.Model
		if model == "" {
			model = cfg.OpenAI.ChatModel
		}
		return match.NewLLMSelector(
			metrics.InstrumentGenerator(generator, m, "select"),
			match.WithSelectorModel(model),
			match.WithSelectorLogger(logger),
			match.WithSelectionRecorder(m),
		), nil
	default:
		return nil, fmt.Errorf("unknown match mode: %q", cfg.Match.Mode)
	}
}

// Close は内部リソースを解放する
func (c *ServiceContainer) Close() {
	if c != nil && c.database != nil {
		c.database.Close()
	}
}

// Logger はロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Database はデータベースを返す
func (c *ServiceContainer) Database() *database.Database {
	if c == nil {
		return nil
	}
	return c.database
}
