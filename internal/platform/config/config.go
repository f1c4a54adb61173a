package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	Database DatabaseConfig
	OpenAI   OpenAIConfig
	LLM      LLMConfig
	Search   SearchConfig
	Match    MatchConfig
	Pipeline PipelineConfig
	Log      LogConfig
	Server   ServerConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI互換APIの設定（チャット + Embeddings）
type OpenAIConfig struct {
	APIKey             string
	BaseURL            string // OpenAI互換プロバイダを使う場合のみ
	ChatModel          string
	EmbeddingModel     string
	EmbeddingDimension int
	EmbeddingBatchSize int
	SendInputType      bool // input_type を送るか（OpenAI本体では false）
}

// LLMConfig は解析・照合の呼び出し設定
type LLMConfig struct {
	ParserTemperature  float64
	ParserMaxTokens    int
	MaxInputTokens     int
	Timeout            time.Duration
	RequestsPerMinute  int
	MaxConcurrentCalls int
}

// SearchConfig は候補検索の設定
type SearchConfig struct {
	Mode             string // "hybrid" or "lexical"
	CandidateLimit   int
	EnableEmbeddings bool
}

// MatchConfig は候補照合の設定
type MatchConfig struct {
	Mode  string // "llm" or "lexical"
	Model string
}

// PipelineConfig はパイプラインの並列度
type PipelineConfig struct {
	MaxConcurrency int
}

// LogConfig はロガーの設定
type LogConfig struct {
	Level  string
	Format string
}

// ServerConfig はMCPサーバーの設定
type ServerConfig struct {
	Transport   string // "stdio" or "http"
	Port        int
	MetricsPath string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "nutrilog"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "nutrilog"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			BaseURL:            getEnv("OPENAI_BASE_URL", ""),
			ChatModel:          getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			EmbeddingBatchSize: getEnvAsInt("OPENAI_EMBEDDING_BATCH_SIZE", 96),
			SendInputType:      getEnvAsBool("OPENAI_EMBEDDING_INPUT_TYPE", false),
		},
		LLM: LLMConfig{
			ParserTemperature:  getEnvAsFloat("LLM_PARSER_TEMPERATURE", 0.2),
			ParserMaxTokens:    getEnvAsInt("LLM_PARSER_MAX_TOKENS", 1024),
			MaxInputTokens:     getEnvAsInt("LLM_MAX_INPUT_TOKENS", 2000),
			Timeout:            getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
			RequestsPerMinute:  getEnvAsInt("LLM_MAX_REQUESTS_PER_MINUTE", 500),
			MaxConcurrentCalls: getEnvAsInt("LLM_MAX_CONCURRENT_CALLS", 8),
		},
		Search: SearchConfig{
			Mode:             getEnv("SEARCH_MODE", "hybrid"),
			CandidateLimit:   getEnvAsInt("SEARCH_CANDIDATE_LIMIT", 5),
			EnableEmbeddings: getEnvAsBool("SEARCH_ENABLE_EMBEDDINGS", true),
		},
		Match: MatchConfig{
			Mode:  getEnv("MATCH_MODE", "llm"),
			Model: getEnv("MATCH_MODEL", ""),
		},
		Pipeline: PipelineConfig{
			MaxConcurrency: getEnvAsInt("PIPELINE_MAX_CONCURRENCY", 8),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Server: ServerConfig{
			Transport:   getEnv("MCP_TRANSPORT", "stdio"),
			Port:        getEnvAsInt("MCP_PORT", 8080),
			MetricsPath: getEnv("METRICS_PATH", "/metrics"),
		},
	}

	return cfg, nil
}

// Validate は組み合わせとして不正な設定を検出します
func (c *Config) Validate() error {
	var errs []error

	switch c.Search.Mode {
	case "hybrid", "lexical":
	default:
		errs = append(errs, fmt.Errorf("SEARCH_MODE must be hybrid or lexical: %q", c.Search.Mode))
	}

	switch c.Match.Mode {
	case "llm", "lexical":
	default:
		errs = append(errs, fmt.Errorf("MATCH_MODE must be llm or lexical: %q", c.Match.Mode))
	}

	switch c.Server.Transport {
	case "stdio", "http":
	default:
		errs = append(errs, fmt.Errorf("MCP_TRANSPORT must be stdio or http: %q", c.Server.Transport))
	}

	if c.Search.CandidateLimit <= 0 {
		errs = append(errs, fmt.Errorf("SEARCH_CANDIDATE_LIMIT must be positive: %d", c.Search.CandidateLimit))
	}
	if c.Pipeline.MaxConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("PIPELINE_MAX_CONCURRENCY must be positive: %d", c.Pipeline.MaxConcurrency))
	}
	if c.OpenAI.EmbeddingBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("OPENAI_EMBEDDING_BATCH_SIZE must be positive: %d", c.OpenAI.EmbeddingBatchSize))
	}

	return errors.Join(errs...)
}

// UsesEmbeddings はセマンティック検索を有効にする構成かを返します
func (c *Config) UsesEmbeddings() bool {
	return c.Search.Mode != "lexical" && c.Search.EnableEmbeddings
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（"30s" 形式）
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
