package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/nutrilog/internal/core/nutrition"
	"github.com/jinford/nutrilog/internal/core/search"
)

// DBTX は pgxpool.Pool と pgx.Tx の共通インターフェース
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// FoodRepository は search.Store と search.VectorSearcher を実装する PostgreSQL リポジトリ。
type FoodRepository struct {
	db DBTX
}

// NewFoodRepository は新しい FoodRepository を返す。
func NewFoodRepository(db DBTX) *FoodRepository {
	return &FoodRepository{db: db}
}

var (
	_ search.Store          = (*FoodRepository)(nil)
	_ search.VectorSearcher = (*FoodRepository)(nil)
	_ search.EmbeddingStore = (*FoodRepository)(nil)
)

const vectorSearchSQL = `
SELECT id, name, category, embedding <=> $1 AS distance
FROM foods
WHERE embedding IS NOT NULL
ORDER BY distance
LIMIT $2`

func (r *FoodRepository) VectorSearch(ctx context.Context, serializedEmbedding string, limit int) ([]nutrition.Candidate, error) {
	vector, err := search.DeserializeEmbedding(serializedEmbedding)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return []nutrition.Candidate{}, nil
	}

	rows, err := r.db.Query(ctx, vectorSearchSQL, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search foods by vector: %w", err)
	}
	defer rows.Close()

	candidates := []nutrition.Candidate{}
	for rows.Next() {
		var (
			c        nutrition.Candidate
			distance float64
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Category, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan vector search row: %w", err)
		}
		c.Distance = &distance
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vector search rows: %w", err)
	}
	return candidates, nil
}

const fullTextSearchSQL = `
SELECT id, name, category
FROM foods
WHERE search_tsv @@ to_tsquery('simple', $1)
ORDER BY ts_rank(search_tsv, to_tsquery('simple', $1)) DESC, id
LIMIT $2`

func (r *FoodRepository) FullTextSearch(ctx context.Context, prefixQuery string, limit int) ([]nutrition.Candidate, error) {
	if strings.TrimSpace(prefixQuery) == "" {
		return []nutrition.Candidate{}, nil
	}
	return r.queryCandidates(ctx, "full-text", fullTextSearchSQL, prefixQuery, limit)
}

const substringSearchSQL = `
SELECT id, name, category
FROM foods
WHERE name ILIKE '%' || $1 || '%' ESCAPE '\'
ORDER BY id
LIMIT $2`

func (r *FoodRepository) SubstringSearch(ctx context.Context, name string, limit int) ([]nutrition.Candidate, error) {
	return r.queryCandidates(ctx, "substring", substringSearchSQL, escapeLike(name), limit)
}

func (r *FoodRepository) queryCandidates(ctx context.Context, kind, sql string, arg string, limit int) ([]nutrition.Candidate, error) {
	rows, err := r.db.Query(ctx, sql, arg, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to run %s search: %w", kind, err)
	}
	defer rows.Close()

	candidates := []nutrition.Candidate{}
	for rows.Next() {
		var c nutrition.Candidate
		if err := rows.Scan(&c.ID, &c.Name, &c.Category); err != nil {
			return nil, fmt.Errorf("failed to scan %s search row: %w", kind, err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s search rows: %w", kind, err)
	}
	return candidates, nil
}

var getFoodByIDSQL = "SELECT " + foodColumns + " FROM foods WHERE id = $1"

// GetFoodByID は食品レコードを返す。存在しない場合は nil, nil を返す。
// 数値として不正な栄養値は 0 に正規化される。
func (r *FoodRepository) GetFoodByID(ctx context.Context, id int64) (*nutrition.FoodRecord, error) {
	var record nutrition.FoodRecord
	targets := append([]any{&record.ID, &record.Name, &record.Category, &record.DataSource},
		nutrientScanTargets(&record.Nutrients)...)

	if err := r.db.QueryRow(ctx, getFoodByIDSQL, id).Scan(targets...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get food %d: %w", id, err)
	}

	record.Nutrients = nutrition.Sanitize(record.Nutrients)
	return &record, nil
}

// InsertFood は食品レコードを追加し、採番されたIDを返す
func (r *FoodRepository) InsertFood(ctx context.Context, record *nutrition.FoodRecord) (int64, error) {
	columns := append([]string{"name", "category", "data_source"}, nutrientColumns...)
	columns = append(columns, "embedding")

	args := append([]any{record.Name, record.Category, record.DataSource}, nutrientScanTargets(&record.Nutrients)...)
	var embedding any
	if len(record.Embedding) > 0 {
		embedding = pgvector.NewVector(record.Embedding)
	}
	args = append(args, embedding)

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	sql := fmt.Sprintf("INSERT INTO foods (%s) VALUES (%s) RETURNING id",
		strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	var id int64
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert food %q: %w", record.Name, err)
	}
	record.ID = id
	return id, nil
}

// UpdateEmbedding は食品のベクトルを更新する
func (r *FoodRepository) UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error {
	tag, err := r.db.Exec(ctx, "UPDATE foods SET embedding = $2 WHERE id = $1", id, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("failed to update embedding for food %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("food %d not found", id)
	}
	return nil
}

// ListFoodsWithoutEmbedding はベクトル未設定で afterID より大きいIDの食品をID順に返す
func (r *FoodRepository) ListFoodsWithoutEmbedding(ctx context.Context, afterID int64, limit int) ([]nutrition.Candidate, error) {
	rows, err := r.db.Query(ctx,
		"SELECT id, name, category FROM foods WHERE embedding IS NULL AND id > $1 ORDER BY id LIMIT $2",
		afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list foods without embedding: %w", err)
	}
	defer rows.Close()

	var foods []nutrition.Candidate
	for rows.Next() {
		var c nutrition.Candidate
		if err := rows.Scan(&c.ID, &c.Name, &c.Category); err != nil {
			return nil, fmt.Errorf("failed to scan food row: %w", err)
		}
		foods = append(foods, c)
	}
	return foods, rows.Err()
}

// escapeLike は LIKE のワイルドカード文字をエスケープする
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.TrimSpace(s))
}
