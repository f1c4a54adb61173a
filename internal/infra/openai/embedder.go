package openai

import (
	"context"
	"fmt"

	"github.com/jinford/nutrilog/internal/core/search"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimension は食品ベクトル列の次元
	DefaultEmbeddingDimension = 1536
	// DefaultEmbeddingBatchSize は1リクエストあたりのテキスト数の上限
	DefaultEmbeddingBatchSize = 96
)

// BatchError はバッチ内のどの位置から失敗したかを示すエラー
type BatchError struct {
	Offset int
	Size   int
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embedding batch at offset %d (size %d) failed: %v", e.Offset, e.Size, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Embedder は OpenAI Embeddings API を使用してテキストをベクトルに変換する
type Embedder struct {
	client        openai.Client
	model         string
	dimension     int
	batchSize     int
	sendInputType bool
}

type embedderOptions struct {
	model          string
	dimension      int
	batchSize      int
	sendInputType  bool
	requestOptions []option.RequestOption
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithEmbeddingDimension はベクトル次元を上書きする
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// WithEmbeddingBatchSize は1リクエストあたりのテキスト数を設定する
func WithEmbeddingBatchSize(size int) EmbedderOption {
	return func(o *embedderOptions) {
		if size > 0 {
			o.batchSize = size
		}
	}
}

// WithInputType は input_type（document / query）をリクエストに含める。
// OpenAI互換の別プロバイダ向けで、OpenAI本体では無効にしておく。
func WithInputType(enabled bool) EmbedderOption {
	return func(o *embedderOptions) {
		o.sendInputType = enabled
	}
}

// WithEmbeddingBaseURL はOpenAI互換エンドポイントのURLを設定する
func WithEmbeddingBaseURL(baseURL string) EmbedderOption {
	return func(o *embedderOptions) {
		if baseURL != "" {
			o.requestOptions = append(o.requestOptions, option.WithBaseURL(baseURL))
		}
	}
}

// WithEmbeddingRequestOptions は SDK のリクエストオプションを追加する
func WithEmbeddingRequestOptions(opts ...option.RequestOption) EmbedderOption {
	return func(o *embedderOptions) {
		o.requestOptions = append(o.requestOptions, opts...)
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(apiKey string, opts ...EmbedderOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := embedderOptions{
		model:     DefaultEmbeddingModel,
		dimension: DefaultEmbeddingDimension,
		batchSize: DefaultEmbeddingBatchSize,
	}
	for _, opt := range opts {
		opt(&options)
	}

	requestOptions := append([]option.RequestOption{option.WithAPIKey(apiKey)}, options.requestOptions...)

	return &Embedder{
		client:        openai.NewClient(requestOptions...),
		model:         options.model,
		dimension:     options.dimension,
		batchSize:     options.batchSize,
		sendInputType: options.sendInputType,
	}, nil
}

// Embed は単一テキストの Embedding を生成する
func (e *Embedder) Embed(ctx context.Context, text string, inputType search.InputType) ([]float32, error) {
	embeddings, err := e.BatchEmbed(ctx, []string{text}, inputType)
	if err != nil {
		return nil, err
	}

	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings generated")
	}

	return embeddings[0], nil
}

// BatchEmbed はテキストを batchSize ごとに分割して Embedding を生成する。
// 結果は入力と同じ順序で返る。途中のバッチが失敗した場合は *BatchError を返す。
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string, inputType search.InputType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	embeddings := make([][]float32, 0, len(texts))
	for offset := 0; offset < len(texts); offset += e.batchSize {
		end := min(offset+e.batchSize, len(texts))

		vectors, err := e.embedChunk(ctx, texts[offset:end], inputType)
		if err != nil {
			return nil, &BatchError{Offset: offset, Size: end - offset, Err: err}
		}
		embeddings = append(embeddings, vectors...)
	}

	return embeddings, nil
}

func (e *Embedder) embedChunk(ctx context.Context, texts []string, inputType search.InputType) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}

	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	var reqOpts []option.RequestOption
	if e.sendInputType && inputType != "" {
		reqOpts = append(reqOpts, option.WithJSONSet("input_type", string(inputType)))
	}

	resp, err := e.client.Embeddings.New(ctx, params, reqOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || int(data.Index) >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", data.Index)
		}
		if embeddings[data.Index] != nil {
			return nil, fmt.Errorf("duplicate embedding index %d", data.Index)
		}
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		embeddings[data.Index] = vector
	}

	return embeddings, nil
}

// インターフェース実装の確認
var _ search.Embedder = (*Embedder)(nil)
