package postgres

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Schema はテーブル定義のDDLを返す
func Schema() string {
	return schemaSQL
}

// ApplySchema は拡張・テーブル・インデックスを作成する（冪等）
func ApplySchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
