package llm

import (
	"context"
	"errors"
)

// Role はメッセージの発話者
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message はチャット形式の1メッセージ
type Message struct {
	Role    Role
	Content string
}

// SystemMessage はシステムメッセージを作成する
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage はユーザーメッセージを作成する
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// ResponseSchema はレスポンスを拘束するJSON Schema
type ResponseSchema struct {
	Name        string
	Description string
	Schema      map[string]any
	Strict      bool
}

// CompletionRequest はLLMへの生成リクエスト
type CompletionRequest struct {
	Messages    []Message
	Model       string // 空の場合はクライアントのデフォルトモデル
	Temperature float64
	MaxTokens   int
	// ResponseSchema が設定されている場合、構造化出力を要求する
	ResponseSchema *ResponseSchema
}

// CompletionResponse はLLMからの生成結果
type CompletionResponse struct {
	Content    string
	TokensUsed int
	Model      string
}

// Generator はテキスト生成サービスのインターフェース
type Generator interface {
	GenerateCompletion(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

var (
	// ErrEmptyCompletion は生成結果が空の場合のエラー
	ErrEmptyCompletion = errors.New("empty completion")

	// ErrMaxRetriesExceeded は最大リトライ回数を超えた場合のエラー
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)
