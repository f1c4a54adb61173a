package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/nutrilog/internal/core/foodlog"
	"github.com/jinford/nutrilog/internal/core/nutrition"
)

type stubAnalyzer struct {
	result *foodlog.Result
	err    error
	texts  []string
}

func (a *stubAnalyzer) Run(ctx context.Context, text string) (*foodlog.Result, error) {
	a.texts = append(a.texts, text)
	return a.result, a.err
}

type stubSearcher struct {
	candidates []nutrition.Candidate
	err        error
	limits     []int
}

func (s *stubSearcher) Retrieve(ctx context.Context, name string, limit int) ([]nutrition.Candidate, error) {
	s.limits = append(s.limits, limit)
	return s.candidates, s.err
}

type stubLogs struct {
	created []foodlog.CreateLogParams
	day     *foodlog.DailySummary
	dayErr  error
	periods []string
}

func (l *stubLogs) CreateLog(ctx context.Context, params foodlog.CreateLogParams) (*foodlog.Log, error) {
	l.created = append(l.created, params)
	return &foodlog.Log{UserID: params.UserID, LogDate: foodlog.DateOf(params.Date), Calories: params.Result.Total.Calories}, nil
}

func (l *stubLogs) GetDailySummary(ctx context.Context, userID string, date time.Time) (*foodlog.DailySummary, error) {
	return l.day, l.dayErr
}

func (l *stubLogs) GetWeeklySummary(ctx context.Context, userID string, date time.Time) (*foodlog.PeriodSummary, error) {
	l.periods = append(l.periods, "week")
	start, end := foodlog.WeekRange(date)
	return &foodlog.PeriodSummary{UserID: userID, Start: start, End: end, Days: []*foodlog.DailySummary{}}, nil
}

func (l *stubLogs) GetMonthlySummary(ctx context.Context, userID string, date time.Time) (*foodlog.PeriodSummary, error) {
	l.periods = append(l.periods, "month")
	start, end := foodlog.MonthRange(date)
	return &foodlog.PeriodSummary{
		UserID: userID, Start: start, End: end,
		Days:   []*foodlog.DailySummary{{UserID: userID, Date: start}},
	}, nil
}

type stubHealth struct {
	err   error
	calls int
}

func (h *stubHealth) Ping(ctx context.Context) error {
	h.calls++
	return h.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 4, 21, 0, 0, 0, time.UTC)
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func eggResult() *foodlog.Result {
	egg := nutrition.Candidate{ID: 1, Name: "Egg, whole"}
	n := nutrition.Nutrients{Calories: 143}
	r := foodlog.EmptyResult()
	r.Foods = []string{"egg"}
	r.Items["egg"] = foodlog.Item{Food: "egg", PortionGrams: 100, Match: &egg, Nutrients: &n}
	r.Total = n
	return r
}

func newTestServer(analyzer *stubAnalyzer, searcher *stubSearcher, logs *stubLogs, opts ...Option) *Server {
	opts = append([]Option{WithLogger(quietLogger()), WithClock(fixedNow)}, opts...)
	return NewServer(analyzer, searcher, logs, opts...)
}

func TestHandleLogMeal(t *testing.T) {
	t.Run("保存なしは解析結果のみ返す", func(t *testing.T) {
		analyzer := &stubAnalyzer{result: eggResult()}
		logs := &stubLogs{}
		s := newTestServer(analyzer, &stubSearcher{}, logs)

		res, err := s.handleLogMeal(context.Background(), callRequest("log_meal", map[string]any{"text": "an egg"}))
		require.NoError(t, err)
		require.False(t, res.IsError)

		var body LogMealResponse
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &body))
		assert.Equal(t, 143.0, body.Result.Total.Calories)
		assert.Nil(t, body.Log)
		assert.Empty(t, logs.created)
		assert.Equal(t, []string{"an egg"}, analyzer.texts)
	})

	t.Run("保存ありは今日の日付で記録する", func(t *testing.T) {
		logs := &stubLogs{}
		s := newTestServer(&stubAnalyzer{result: eggResult()}, &stubSearcher{}, logs)

		res, err := s.handleLogMeal(context.Background(), callRequest("log_meal", map[string]any{
			"text": "an egg", "save": true, "user_id": "user-1", "meal_type": "breakfast",
		}))
		require.NoError(t, err)
		require.False(t, res.IsError)

		require.Len(t, logs.created, 1)
		assert.Equal(t, "user-1", logs.created[0].UserID)
		assert.Equal(t, foodlog.MealBreakfast, logs.created[0].MealType)
		assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), logs.created[0].Date)
	})

	tests := []struct {
		name string
		args map[string]any
	}{
		{name: "テキストなし", args: map[string]any{}},
		{name: "空白のみのテキスト", args: map[string]any{"text": "   "}},
		{name: "保存時にユーザーIDなし", args: map[string]any{"text": "egg", "save": true}},
		{name: "不正な日付", args: map[string]any{"text": "egg", "date": "04/03/2026"}},
		{name: "不正な食事区分", args: map[string]any{"text": "egg", "meal_type": "brunch"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := &stubAnalyzer{result: eggResult()}
			s := newTestServer(analyzer, &stubSearcher{}, &stubLogs{})

			res, err := s.handleLogMeal(context.Background(), callRequest("log_meal", tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Empty(t, analyzer.texts)
		})
	}

	t.Run("解析の失敗はツールエラー", func(t *testing.T) {
		s := newTestServer(&stubAnalyzer{err: errors.New("upstream down")}, &stubSearcher{}, &stubLogs{})

		res, err := s.handleLogMeal(context.Background(), callRequest("log_meal", map[string]any{"text": "egg"}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(t, res), "upstream down")
	})
}

func TestHandleSearchFoods(t *testing.T) {
	tests := []struct {
		name      string
		args      map[string]any
		wantLimit int
	}{
		{name: "既定の件数", args: map[string]any{"name": "egg"}, wantLimit: 5},
		{name: "指定した件数", args: map[string]any{"name": "egg", "limit": 3.0}, wantLimit: 3},
		{name: "上限で切り詰め", args: map[string]any{"name": "egg", "limit": 500.0}, wantLimit: maxSearchLimit},
		{name: "0以下は既定値", args: map[string]any{"name": "egg", "limit": -1.0}, wantLimit: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &stubSearcher{candidates: []nutrition.Candidate{{ID: 1, Name: "Egg, whole"}}}
			s := newTestServer(&stubAnalyzer{}, searcher, &stubLogs{})

			res, err := s.handleSearchFoods(context.Background(), callRequest("search_foods", tt.args))
			require.NoError(t, err)
			require.False(t, res.IsError)
			assert.Equal(t, []int{tt.wantLimit}, searcher.limits)

			var body SearchFoodsResponse
			require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &body))
			assert.True(t, body.Found)
			assert.Equal(t, 1, body.Count)
		})
	}

	t.Run("候補なしは空配列", func(t *testing.T) {
		s := newTestServer(&stubAnalyzer{}, &stubSearcher{}, &stubLogs{})

		res, err := s.handleSearchFoods(context.Background(), callRequest("search_foods", map[string]any{"name": "unicorn"}))
		require.NoError(t, err)
		assert.JSONEq(t, `{"found": false, "count": 0, "candidates": []}`, resultText(t, res))
	})
}

func TestHandleSummary(t *testing.T) {
	t.Run("日次サマリー", func(t *testing.T) {
		logs := &stubLogs{day: &foodlog.DailySummary{UserID: "user-1", Totals: nutrition.Nutrients{Calories: 500}}}
		s := newTestServer(&stubAnalyzer{}, &stubSearcher{}, logs)

		res, err := s.handleSummary(context.Background(), callRequest("daily_summary", map[string]any{"user_id": "user-1"}))
		require.NoError(t, err)

		var body SummaryResponse
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &body))
		assert.True(t, body.Found)
		assert.Equal(t, 500.0, body.Day.Totals.Calories)
	})

	t.Run("サマリーがない日はFoundがfalse", func(t *testing.T) {
		logs := &stubLogs{dayErr: foodlog.ErrSummaryNotFound}
		s := newTestServer(&stubAnalyzer{}, &stubSearcher{}, logs)

		res, err := s.handleSummary(context.Background(), callRequest("daily_summary", map[string]any{"user_id": "user-1"}))
		require.NoError(t, err)
		require.False(t, res.IsError)

		var body SummaryResponse
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &body))
		assert.False(t, body.Found)
	})

	t.Run("週と月", func(t *testing.T) {
		logs := &stubLogs{}
		s := newTestServer(&stubAnalyzer{}, &stubSearcher{}, logs)

		week, err := s.handleSummary(context.Background(), callRequest("daily_summary", map[string]any{
			"user_id": "user-1", "period": "week", "date": "2026-03-08",
		}))
		require.NoError(t, err)
		var weekBody SummaryResponse
		require.NoError(t, json.Unmarshal([]byte(resultText(t, week)), &weekBody))
		assert.False(t, weekBody.Found)
		assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), weekBody.Range.Start)

		month, err := s.handleSummary(context.Background(), callRequest("daily_summary", map[string]any{
			"user_id": "user-1", "period": "month",
		}))
		require.NoError(t, err)
		var monthBody SummaryResponse
		require.NoError(t, json.Unmarshal([]byte(resultText(t, month)), &monthBody))
		assert.True(t, monthBody.Found)

		assert.Equal(t, []string{"week", "month"}, logs.periods)
	})

	t.Run("不明な期間", func(t *testing.T) {
		s := newTestServer(&stubAnalyzer{}, &stubSearcher{}, &stubLogs{})

		res, err := s.handleSummary(context.Background(), callRequest("daily_summary", map[string]any{
			"user_id": "user-1", "period": "year",
		}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
	})
}

func TestServer_checkHealthWithCache(t *testing.T) {
	t.Run("結果をキャッシュする", func(t *testing.T) {
		health := &stubHealth{err: errors.New("database connection failed")}
		s := newTestServer(&stubAnalyzer{}, &stubSearcher{}, &stubLogs{}, WithHealthChecker(health))

		require.Error(t, s.checkHealthWithCache(context.Background()))
		health.err = nil
		assert.Error(t, s.checkHealthWithCache(context.Background()))
		assert.Equal(t, 1, health.calls)
	})

	t.Run("期限切れで再確認する", func(t *testing.T) {
		health := &stubHealth{}
		s := newTestServer(&stubAnalyzer{}, &stubSearcher{}, &stubLogs{}, WithHealthChecker(health))

		require.NoError(t, s.checkHealthWithCache(context.Background()))
		s.lastHealthCheck = time.Now().Add(-healthCacheDuration - time.Second)
		require.NoError(t, s.checkHealthWithCache(context.Background()))
		assert.Equal(t, 2, health.calls)
	})

	t.Run("チェッカーなしは常に正常", func(t *testing.T) {
		s := newTestServer(&stubAnalyzer{}, &stubSearcher{}, &stubLogs{})
		assert.NoError(t, s.checkHealthWithCache(context.Background()))
	})
}

func TestServer_Handler(t *testing.T) {
	health := &stubHealth{err: errors.New("down")}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("nutrilog_up 1\n"))
	})
	s := newTestServer(&stubAnalyzer{}, &stubSearcher{}, &stubLogs{},
		WithHealthChecker(health),
		WithMetricsHandler("/metrics", metrics),
	)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/health", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "nutrilog_up 1\n", string(body))
}
