package foodlog

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/nutrilog/internal/core/entry"
	"github.com/jinford/nutrilog/internal/core/nutrition"
)

// Stage はパイプラインの処理段階
type Stage string

const (
	StageParse    Stage = "parse"
	StageRetrieve Stage = "retrieve"
	StageSelect   Stage = "select"
	StageLookup   Stage = "lookup"
)

// Item は食品名1件分の処理結果
type Item struct {
	Food         string                `json:"food"`
	PortionGrams float64               `json:"portionGrams"`
	Match        *nutrition.Candidate  `json:"match"`
	Candidates   []nutrition.Candidate `json:"candidates"`
	Nutrients    *nutrition.Nutrients  `json:"nutrients"`

	// Fallback は選択結果が不正だったため先頭候補を採用したことを示す
	Fallback    bool   `json:"fallback,omitempty"`
	FailedStage Stage  `json:"failedStage,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Result はパイプライン1回分の結果
type Result struct {
	Entries []entry.Entry       `json:"entries"`
	Foods   []string            `json:"foods"` // 重複排除後の食品名（初出順）
	Items   map[string]Item     `json:"items"` // 食品名をキーとした処理結果
	Total   nutrition.Nutrients `json:"total"`
}

// EmptyResult は食品が1件も抽出されなかった場合の結果
func EmptyResult() *Result {
	return &Result{
		Entries: []entry.Entry{},
		Foods:   []string{},
		Items:   map[string]Item{},
	}
}

// MatchedItems は一致した食品の結果を初出順に返す
func (r *Result) MatchedItems() []Item {
	items := make([]Item, 0, len(r.Foods))
	for _, food := range r.Foods {
		if item, ok := r.Items[food]; ok && item.Match != nil && item.Nutrients != nil {
			items = append(items, item)
		}
	}
	return items
}

// LoggedItem は保存された食事記録の1品目（摂取量換算済み）
type LoggedItem struct {
	FoodID       int64               `json:"foodId"`
	Name         string              `json:"name"`
	Category     string              `json:"category"`
	Query        string              `json:"query"`
	PortionGrams float64             `json:"portionGrams"`
	Nutrients    nutrition.Nutrients `json:"nutrients"`
}

// Log は保存された食事記録
type Log struct {
	ID        uuid.UUID    `json:"id"`
	UserID    string       `json:"userId"`
	LogDate   time.Time    `json:"logDate"`
	MealType  MealType     `json:"mealType,omitempty"`
	RawText   string       `json:"rawText,omitempty"`
	Items     []LoggedItem `json:"items"`
	Calories  float64      `json:"calories"`
	Protein   float64      `json:"protein"`
	Carbs     float64      `json:"carbs"`
	Fat       float64      `json:"fat"`
	CreatedAt time.Time    `json:"createdAt"`
}

// DailySummary はユーザーの1日分の栄養合計
type DailySummary struct {
	ID        uuid.UUID           `json:"id"`
	UserID    string              `json:"userId"`
	Date      time.Time           `json:"date"`
	Totals    nutrition.Nutrients `json:"totals"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// PeriodSummary は期間内の日次サマリーと合計
type PeriodSummary struct {
	UserID string              `json:"userId"`
	Start  time.Time           `json:"start"`
	End    time.Time           `json:"end"`
	Days   []*DailySummary     `json:"days"`
	Totals nutrition.Nutrients `json:"totals"`
}

// MealType は食事の区分
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
)

// ParseMealType は文字列から MealType を解析する（空は未指定）
func ParseMealType(s string) (MealType, error) {
	switch MealType(s) {
	case "", MealBreakfast, MealLunch, MealDinner, MealSnack:
		return MealType(s), nil
	default:
		return "", fmt.Errorf("unknown meal type: %q", s)
	}
}

// DateLayout は記録日の文字列形式
const DateLayout = "2006-01-02"

// ParseDate は "2006-01-02" 形式の日付を解析する
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// DateOf は時刻を同じ暦日のUTC 0時に丸める
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WeekRange は日付を含む週（月曜始まり）の初日と最終日を返す
func WeekRange(date time.Time) (time.Time, time.Time) {
	d := DateOf(date)
	offset := (int(d.Weekday()) + 6) % 7
	start := d.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 6)
}

// MonthRange は日付を含む月の初日と最終日を返す
func MonthRange(date time.Time) (time.Time, time.Time) {
	d := DateOf(date)
	start := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, -1)
}

var (
	// ErrLogNotFound は食事記録が見つからない場合のエラー
	ErrLogNotFound = errors.New("food log not found")

	// ErrSummaryNotFound は日次サマリーが見つからない場合のエラー
	ErrSummaryNotFound = errors.New("daily summary not found")

	// ErrUserIDRequired はユーザーIDが指定されていない場合のエラー
	ErrUserIDRequired = errors.New("userID is required")
)
