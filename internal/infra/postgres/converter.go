package postgres

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jinford/nutrilog/internal/core/nutrition"
)

// UUIDToPgtype converts uuid.UUID to pgtype.UUID
func UUIDToPgtype(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// PgtypeToUUID converts pgtype.UUID to uuid.UUID
func PgtypeToUUID(id pgtype.UUID) uuid.UUID {
	return id.Bytes
}

// StringToNullableText converts string to pgtype.Text (nullable)
func StringToNullableText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// PgtextToString converts pgtype.Text to string ("" when NULL)
func PgtextToString(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

// DateToPgtype converts the calendar day of t to pgtype.Date
func DateToPgtype(t time.Time) pgtype.Date {
	y, m, d := t.Date()
	return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
}

// PgtypeToDate converts pgtype.Date to a UTC midnight time.Time
func PgtypeToDate(d pgtype.Date) time.Time {
	if !d.Valid {
		return time.Time{}
	}
	y, m, day := d.Time.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// TimeToPgtz converts time.Time to pgtype.Timestamptz
func TimeToPgtz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

// nutrientColumns は foods テーブルの栄養素列（nutrition.Nutrients のフィールド順）
var nutrientColumns = []string{
	"calories", "protein", "carbs", "fat", "fiber",
	"saturated_fat", "omega_3", "omega_6",
	"sodium", "potassium", "calcium", "iron", "magnesium", "zinc",
	"vitamin_a", "vitamin_c", "vitamin_d", "vitamin_e", "vitamin_k",
	"vitamin_b1", "vitamin_b2", "vitamin_b3", "vitamin_b5", "vitamin_b6", "vitamin_b9", "vitamin_b12",
}

var foodColumns = "id, name, category, data_source, " + strings.Join(nutrientColumns, ", ")

// nutrientScanTargets は Scan 先として Nutrients の各フィールドへのポインタを返す
func nutrientScanTargets(n *nutrition.Nutrients) []any {
	return []any{
		&n.Calories, &n.Protein, &n.Carbs, &n.Fat, &n.Fiber,
		&n.SaturatedFat, &n.Omega3, &n.Omega6,
		&n.Sodium, &n.Potassium, &n.Calcium, &n.Iron, &n.Magnesium, &n.Zinc,
		&n.VitaminA, &n.VitaminC, &n.VitaminD, &n.VitaminE, &n.VitaminK,
		&n.VitaminB1, &n.VitaminB2, &n.VitaminB3, &n.VitaminB5, &n.VitaminB6, &n.VitaminB9, &n.VitaminB12,
	}
}
