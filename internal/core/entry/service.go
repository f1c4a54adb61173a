package entry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jinford/nutrilog/internal/core/llm"
)

const (
	// DefaultTemperature はパーサー呼び出しのデフォルト温度
	DefaultTemperature = 0.2

	// DefaultMaxInputTokens は入力テキストのトークン上限のデフォルト値
	DefaultMaxInputTokens = 2000
)

// TokenTrimmer は入力テキストをトークン数の上限に収める
type TokenTrimmer interface {
	TrimToTokenLimit(text string, maxTokens int) string
}

// Parser は自由記述の食事内容を Entry のリストに変換する
type Parser struct {
	generator      llm.Generator
	model          string
	temperature    float64
	maxTokens      int
	maxInputTokens int
	trimmer        TokenTrimmer
	systemPrompt   string
	logger         *slog.Logger
}

// ParserOption は Parser のオプション設定
type ParserOption func(*Parser)

// WithParserModel は使用するモデルを指定する（空の場合はクライアントのデフォルト）
func WithParserModel(model string) ParserOption {
	return func(p *Parser) {
		p.model = model
	}
}

// WithParserTemperature は温度を指定する
func WithParserTemperature(temperature float64) ParserOption {
	return func(p *Parser) {
		p.temperature = temperature
	}
}

// WithParserMaxTokens は出力トークンの上限を指定する
func WithParserMaxTokens(maxTokens int) ParserOption {
	return func(p *Parser) {
		p.maxTokens = maxTokens
	}
}

// WithInputTokenLimit は入力テキストのトークン上限と切り詰めに使う TokenTrimmer を設定する
func WithInputTokenLimit(maxInputTokens int, trimmer TokenTrimmer) ParserOption {
	return func(p *Parser) {
		p.maxInputTokens = maxInputTokens
		p.trimmer = trimmer
	}
}

// WithRules は分量推定の規則を差し替える
func WithRules(rules Rules) ParserOption {
	return func(p *Parser) {
		p.systemPrompt = BuildSystemPrompt(rules)
	}
}

// WithParserLogger はロガーを設定する
func WithParserLogger(logger *slog.Logger) ParserOption {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewParser は新しい Parser を作成する
func NewParser(generator llm.Generator, opts ...ParserOption) *Parser {
	p := &Parser{
		generator:      generator,
		temperature:    DefaultTemperature,
		maxInputTokens: DefaultMaxInputTokens,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.systemPrompt == "" {
		p.systemPrompt = BuildSystemPrompt(DefaultRules)
	}

	return p
}

// Parse は食事の記述を解析する。
// 空白のみの入力は外部呼び出しを行わずに空のリストを返す。
// LLMの出力が不正な場合は ErrMalformedResponse を返す（リトライはしない）。
func (p *Parser) Parse(ctx context.Context, text string) ([]Entry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []Entry{}, nil
	}

	if p.trimmer != nil && p.maxInputTokens > 0 {
		trimmed := p.trimmer.TrimToTokenLimit(text, p.maxInputTokens)
		if len(trimmed) < len(text) {
			p.logger.Warn("meal description trimmed to token limit",
				"maxTokens", p.maxInputTokens,
				"originalLength", len(text),
				"trimmedLength", len(trimmed),
			)
		}
		text = trimmed
	}

	resp, err := p.generator.GenerateCompletion(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			llm.SystemMessage(p.systemPrompt),
			llm.UserMessage(text),
		},
		Model:          p.model,
		Temperature:    p.temperature,
		MaxTokens:      p.maxTokens,
		ResponseSchema: ResponseSchema(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate entry completion: %w", err)
	}

	entries, err := DecodeEntries(resp.Content)
	if err != nil {
		p.logger.Warn("parser returned malformed output",
			"error", err,
			"model", resp.Model,
		)
		return nil, err
	}

	p.logger.Info("meal description parsed",
		"entries", len(entries),
		"tokensUsed", resp.TokensUsed,
	)

	return entries, nil
}
