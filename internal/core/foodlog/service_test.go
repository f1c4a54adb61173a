package foodlog

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/nutrilog/internal/core/nutrition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepo は RepositoryRW と Transactor のインメモリ実装
type memoryRepo struct {
	mu        sync.Mutex
	logs      map[uuid.UUID]*Log
	summaries map[string]*DailySummary
	failNext  error
	txCount   int
	locked    []string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		logs:      map[uuid.UUID]*Log{},
		summaries: map[string]*DailySummary{},
	}
}

func summaryKey(userID string, date time.Time) string {
	return userID + "/" + date.Format(DateLayout)
}

func (m *memoryRepo) InTx(ctx context.Context, fn func(repo RepositoryRW) error) error {
	m.mu.Lock()
	m.txCount++
	logs := make(map[uuid.UUID]*Log, len(m.logs))
	for k, v := range m.logs {
		logs[k] = v
	}
	summaries := make(map[string]*DailySummary, len(m.summaries))
	for k, v := range m.summaries {
		summaries[k] = v
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.logs = logs
		m.summaries = summaries
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memoryRepo) GetLog(ctx context.Context, userID string, id uuid.UUID) (*Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log, ok := m.logs[id]
	if !ok || log.UserID != userID {
		return nil, ErrLogNotFound
	}
	return log, nil
}

func (m *memoryRepo) ListLogsByDate(ctx context.Context, userID string, date time.Time) ([]*Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Log
	for _, log := range m.logs {
		if log.UserID == userID && log.LogDate.Equal(date) {
			out = append(out, log)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryRepo) GetDailySummary(ctx context.Context, userID string, date time.Time) (*DailySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[summaryKey(userID, date)]
	if !ok {
		return nil, ErrSummaryNotFound
	}
	return s, nil
}

func (m *memoryRepo) ListDailySummaries(ctx context.Context, userID string, from, to time.Time) ([]*DailySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*DailySummary
	for _, s := range m.summaries {
		if s.UserID == userID && !s.Date.Before(from) && !s.Date.After(to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memoryRepo) InsertLog(ctx context.Context, log *Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.logs[log.ID] = log
	return nil
}

func (m *memoryRepo) DeleteLog(ctx context.Context, userID string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.logs[id]; !ok {
		return ErrLogNotFound
	}
	delete(m.logs, id)
	return nil
}

func (m *memoryRepo) UpsertDailySummary(ctx context.Context, summary *DailySummary) (*DailySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := summaryKey(summary.UserID, summary.Date)
	if existing, ok := m.summaries[key]; ok {
		summary.ID = existing.ID
	}
	m.summaries[key] = summary
	return summary, nil
}

func (m *memoryRepo) DeleteDailySummary(ctx context.Context, userID string, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := summaryKey(userID, date)
	if _, ok := m.summaries[key]; !ok {
		return ErrSummaryNotFound
	}
	delete(m.summaries, key)
	return nil
}

func (m *memoryRepo) LockDay(ctx context.Context, userID string, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = append(m.locked, summaryKey(userID, date))
	return nil
}

func matchedResult(items ...Item) *Result {
	r := EmptyResult()
	for _, item := range items {
		r.Foods = append(r.Foods, item.Food)
		r.Items[item.Food] = item
	}
	return r
}

func matchedItem(food string, id int64, grams float64, n nutrition.Nutrients) Item {
	return Item{
		Food:         food,
		PortionGrams: grams,
		Match:        &nutrition.Candidate{ID: id, Name: food},
		Nutrients:    &n,
	}
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func TestService_CreateLog(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, repo, WithServiceLogger(quietLogger()), WithClock(fixedClock()))
	date := time.Date(2026, 3, 4, 8, 30, 0, 0, time.UTC)

	result := matchedResult(
		matchedItem("egg", 1, 100, nutrition.Nutrients{Calories: 143, Protein: 12.6}),
		matchedItem("bread", 2, 30, nutrition.Nutrients{Calories: 79.8, Protein: 2.3}),
	)
	result.Foods = append(result.Foods, "unicorn")
	result.Items["unicorn"] = Item{Food: "unicorn", PortionGrams: 10}

	log, err := svc.CreateLog(context.Background(), CreateLogParams{
		UserID:   "user-1",
		Date:     date,
		MealType: MealBreakfast,
		RawText:  "2 eggs and a slice of toast",
		Result:   result,
	})
	require.NoError(t, err)

	assert.Equal(t, DateOf(date), log.LogDate)
	require.Len(t, log.Items, 2)
	assert.Equal(t, "egg", log.Items[0].Query)
	assert.InDelta(t, 222.8, log.Calories, 1e-9)
	assert.InDelta(t, 14.9, log.Protein, 1e-9)

	summary, err := svc.GetDailySummary(context.Background(), "user-1", date)
	require.NoError(t, err)
	assert.InDelta(t, 222.8, summary.Totals.Calories, 1e-9)
	assert.Equal(t, 1, repo.txCount)
	assert.Equal(t, []string{"user-1/2026-03-04"}, repo.locked)
}

func TestService_CreateLog_Validation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, repo, WithServiceLogger(quietLogger()))

	tests := []struct {
		name   string
		params CreateLogParams
		target error
	}{
		{
			name:   "ユーザーID未指定",
			params: CreateLogParams{UserID: "  ", Result: EmptyResult()},
			target: ErrUserIDRequired,
		},
		{
			name:   "結果未指定",
			params: CreateLogParams{UserID: "user-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateLog(context.Background(), tt.params)
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
	assert.Zero(t, repo.txCount)
}

func TestService_CreateLog_InsertFailureRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	repo.failNext = errors.New("disk full")
	svc := NewService(repo, repo, WithServiceLogger(quietLogger()))

	_, err := svc.CreateLog(context.Background(), CreateLogParams{
		UserID: "user-1",
		Date:   time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		Result: matchedResult(matchedItem("egg", 1, 50, nutrition.Nutrients{Calories: 71.5})),
	})
	require.Error(t, err)
	assert.Empty(t, repo.logs)
	assert.Empty(t, repo.summaries)
}

func TestService_DailySummaryAcrossLogs(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, repo, WithServiceLogger(quietLogger()), WithClock(fixedClock()))
	ctx := context.Background()
	date := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	first, err := svc.CreateLog(ctx, CreateLogParams{
		UserID: "user-1", Date: date,
		Result: matchedResult(matchedItem("egg", 1, 100, nutrition.Nutrients{Calories: 143, Fiber: 0})),
	})
	require.NoError(t, err)

	_, err = svc.CreateLog(ctx, CreateLogParams{
		UserID: "user-1", Date: date.Add(19 * time.Hour),
		Result: matchedResult(matchedItem("apple", 3, 150, nutrition.Nutrients{Calories: 78, Fiber: 3.6})),
	})
	require.NoError(t, err)

	summary, err := svc.GetDailySummary(ctx, "user-1", date)
	require.NoError(t, err)
	assert.InDelta(t, 221, summary.Totals.Calories, 1e-9)
	assert.InDelta(t, 3.6, summary.Totals.Fiber, 1e-9)

	require.NoError(t, svc.DeleteLog(ctx, "user-1", first.ID))
	summary, err = svc.GetDailySummary(ctx, "user-1", date)
	require.NoError(t, err)
	assert.InDelta(t, 78, summary.Totals.Calories, 1e-9)

	logs, err := svc.ListLogsByDate(ctx, "user-1", date)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "apple", logs[0].Items[0].Query)
}

func TestService_DeleteLastLogRemovesSummary(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, repo, WithServiceLogger(quietLogger()))
	ctx := context.Background()
	date := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	log, err := svc.CreateLog(ctx, CreateLogParams{
		UserID: "user-1", Date: date,
		Result: matchedResult(matchedItem("egg", 1, 100, nutrition.Nutrients{Calories: 143})),
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteLog(ctx, "user-1", log.ID))

	_, err = svc.GetDailySummary(ctx, "user-1", date)
	assert.ErrorIs(t, err, ErrSummaryNotFound)
}

func TestService_DeleteLog_NotFound(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, repo)

	err := svc.DeleteLog(context.Background(), "user-1", uuid.New())
	assert.ErrorIs(t, err, ErrLogNotFound)
}

func TestService_PeriodSummaries(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, repo, WithServiceLogger(quietLogger()))
	ctx := context.Background()

	// 2026-03-02 は月曜日
	days := []struct {
		date     time.Time
		calories float64
	}{
		{time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 1000},
		{time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), 1800},
		{time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), 2200},
		{time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), 1500},
	}
	for _, d := range days {
		_, err := svc.CreateLog(ctx, CreateLogParams{
			UserID: "user-1", Date: d.date,
			Result: matchedResult(matchedItem("meal", 1, 100, nutrition.Nutrients{Calories: d.calories})),
		})
		require.NoError(t, err)
	}

	tests := []struct {
		name     string
		get      func(ctx context.Context, userID string, date time.Time) (*PeriodSummary, error)
		date     time.Time
		start    string
		end      string
		days     int
		calories float64
	}{
		{
			name:     "週（月曜始まり）",
			get:      svc.GetWeeklySummary,
			date:     time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
			start:    "2026-03-02",
			end:      "2026-03-08",
			days:     2,
			calories: 4000,
		},
		{
			name:     "日曜日は前の週に含まれる",
			get:      svc.GetWeeklySummary,
			date:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			start:    "2026-02-23",
			end:      "2026-03-01",
			days:     1,
			calories: 1000,
		},
		{
			name:     "月",
			get:      svc.GetMonthlySummary,
			date:     time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
			start:    "2026-03-01",
			end:      "2026-03-31",
			days:     4,
			calories: 6500,
		},
		{
			name:     "記録のない月",
			get:      svc.GetMonthlySummary,
			date:     time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
			start:    "2026-02-01",
			end:      "2026-02-28",
			days:     0,
			calories: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, err := tt.get(ctx, "user-1", tt.date)
			require.NoError(t, err)
			assert.Equal(t, tt.start, summary.Start.Format(DateLayout))
			assert.Equal(t, tt.end, summary.End.Format(DateLayout))
			assert.Len(t, summary.Days, tt.days)
			assert.NotNil(t, summary.Days)
			assert.InDelta(t, tt.calories, summary.Totals.Calories, 1e-9)
		})
	}
}

func TestService_RecalculateDailySummary(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, repo, WithServiceLogger(quietLogger()))
	ctx := context.Background()
	date := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	summary, err := svc.RecalculateDailySummary(ctx, "user-1", date)
	require.NoError(t, err)
	assert.Nil(t, summary)

	repo.logs[uuid.New()] = &Log{
		ID: uuid.New(), UserID: "user-1", LogDate: date,
		Items: []LoggedItem{{Nutrients: nutrition.Nutrients{Calories: 300, Protein: 20}}},
	}
	summary, err = svc.RecalculateDailySummary(ctx, "user-1", date)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.InDelta(t, 20, summary.Totals.Protein, 1e-9)
}

func TestModel_DateHelpers(t *testing.T) {
	t.Run("DateOfは暦日に丸める", func(t *testing.T) {
		jst := time.FixedZone("JST", 9*3600)
		d := DateOf(time.Date(2026, 3, 4, 23, 59, 0, 0, jst))
		assert.Equal(t, "2026-03-04", d.Format(DateLayout))
		assert.Equal(t, time.UTC, d.Location())
	})

	t.Run("不正な日付", func(t *testing.T) {
		_, err := ParseDate("2026/03/04")
		assert.Error(t, err)
	})

	t.Run("食事区分", func(t *testing.T) {
		mt, err := ParseMealType("lunch")
		require.NoError(t, err)
		assert.Equal(t, MealLunch, mt)

		_, err = ParseMealType("brunch")
		assert.Error(t, err)
	})
}
