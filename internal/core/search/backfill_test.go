package search

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/nutrilog/internal/core/nutrition"
)

// memoryEmbeddingStore はID順の食品とベクトルを保持する
type memoryEmbeddingStore struct {
	mu        sync.Mutex
	foods     []nutrition.Candidate
	vectors   map[int64][]float32
	failWrite map[int64]bool
	listErr   error
}

func newMemoryEmbeddingStore(n int) *memoryEmbeddingStore {
	s := &memoryEmbeddingStore{vectors: map[int64][]float32{}, failWrite: map[int64]bool{}}
	for i := 1; i <= n; i++ {
		s.foods = append(s.foods, nutrition.Candidate{ID: int64(i * 10), Name: string(rune('a' + i - 1))})
	}
	return s
}

func (s *memoryEmbeddingStore) ListFoodsWithoutEmbedding(ctx context.Context, afterID int64, limit int) ([]nutrition.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []nutrition.Candidate
	for _, f := range s.foods {
		if _, ok := s.vectors[f.ID]; ok || f.ID <= afterID {
			continue
		}
		out = append(out, f)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memoryEmbeddingStore) UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite[id] {
		return errors.New("write failed")
	}
	s.vectors[id] = embedding
	return nil
}

// failingBatchEmbedder は指定回目のバッチだけ失敗する
type failingBatchEmbedder struct {
	stubEmbedder
	failOn     int
	inputTypes []InputType
}

func (e *failingBatchEmbedder) BatchEmbed(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	e.inputTypes = append(e.inputTypes, inputType)
	if len(e.inputTypes) == e.failOn {
		return nil, errors.New("rate limited")
	}
	return e.stubEmbedder.BatchEmbed(ctx, texts, inputType)
}

func TestBackfillEmbeddings(t *testing.T) {
	store := newMemoryEmbeddingStore(5)
	embedder := &failingBatchEmbedder{}

	stats, err := BackfillEmbeddings(context.Background(), store, embedder, 2, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, BackfillStats{Embedded: 5}, stats)
	assert.Len(t, store.vectors, 5)
	assert.Equal(t, []InputType{InputDocument, InputDocument, InputDocument}, embedder.inputTypes)
}

func TestBackfillEmbeddings_LogsWriteProgress(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := BackfillEmbeddings(context.Background(), newMemoryEmbeddingStore(2), &failingBatchEmbedder{}, 2, logger)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "storing embeddings")
	assert.Contains(t, buf.String(), "Progress: 2/2 (100.0%)")
}

func TestBackfillEmbeddings_FailedBatchIsSkipped(t *testing.T) {
	store := newMemoryEmbeddingStore(5)
	store.failWrite[50] = true
	embedder := &failingBatchEmbedder{failOn: 1}

	stats, err := BackfillEmbeddings(context.Background(), store, embedder, 2, discardLogger())
	require.NoError(t, err)

	// 1バッチ目（10, 20）は埋め込み失敗、50は書き込み失敗
	assert.Equal(t, BackfillStats{Embedded: 2, Failed: 3}, stats)

	var ids []int64
	for id := range store.vectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	assert.Equal(t, []int64{30, 40}, ids)
}

func TestBackfillEmbeddings_Errors(t *testing.T) {
	t.Run("一覧取得の失敗", func(t *testing.T) {
		store := newMemoryEmbeddingStore(1)
		store.listErr = errors.New("connection reset")

		_, err := BackfillEmbeddings(context.Background(), store, &stubEmbedder{}, 0, discardLogger())
		assert.ErrorIs(t, err, store.listErr)
	})

	t.Run("キャンセル済みのcontext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := BackfillEmbeddings(ctx, newMemoryEmbeddingStore(3), &stubEmbedder{}, 2, discardLogger())
		assert.ErrorIs(t, err, context.Canceled)
	})
}
