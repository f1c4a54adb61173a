package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jinford/nutrilog/internal/core/foodlog"
	"github.com/jinford/nutrilog/internal/core/nutrition"
	"github.com/jinford/nutrilog/internal/core/search"
)

const (
	serverName    = "nutrilog"
	serverVersion = "1.0.0"

	maxSearchLimit      = 20
	healthCacheDuration = 10 * time.Second
)

// MealAnalyzer は食事の記述を解析して栄養を求める
type MealAnalyzer interface {
	Run(ctx context.Context, text string) (*foodlog.Result, error)
}

// FoodSearcher は食品名から候補を検索する
type FoodSearcher interface {
	Retrieve(ctx context.Context, name string, limit int) ([]nutrition.Candidate, error)
}

// LogStore は食事記録の保存と集計
type LogStore interface {
	CreateLog(ctx context.Context, params foodlog.CreateLogParams) (*foodlog.Log, error)
	GetDailySummary(ctx context.Context, userID string, date time.Time) (*foodlog.DailySummary, error)
	GetWeeklySummary(ctx context.Context, userID string, date time.Time) (*foodlog.PeriodSummary, error)
	GetMonthlySummary(ctx context.Context, userID string, date time.Time) (*foodlog.PeriodSummary, error)
}

// HealthChecker は依存先の疎通を確認する
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server は mcp-go のサーバーに食事記録のツールを載せたもの
type Server struct {
	mcpServer *server.MCPServer
	analyzer  MealAnalyzer
	searcher  FoodSearcher
	logs      LogStore
	health    HealthChecker
	metrics   http.Handler
	metricsAt string
	now       func() time.Time
	log       *slog.Logger

	healthMu        sync.Mutex
	lastHealthCheck time.Time
	lastHealthError error
}

// Option は Server のオプション設定
type Option func(*Server)

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithHealthChecker は /health で使う疎通確認を設定する
func WithHealthChecker(checker HealthChecker) Option {
	return func(s *Server) {
		s.health = checker
	}
}

// WithMetricsHandler は HTTP モードで path に handler を公開する
func WithMetricsHandler(path string, handler http.Handler) Option {
	return func(s *Server) {
		s.metricsAt = path
		s.metrics = handler
	}
}

// WithClock は「今日」の判定に使う時刻を差し替える
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// NewServer は新しい Server を作成し、ツールを登録する
func NewServer(analyzer MealAnalyzer, searcher FoodSearcher, logs LogStore, opts ...Option) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			serverName,
			serverVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		analyzer: analyzer,
		searcher: searcher,
		logs:     logs,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.addTools()
	return s
}

// LogMealResponse は log_meal の応答
type LogMealResponse struct {
	Result *foodlog.Result `json:"result"`
	Log    *foodlog.Log    `json:"log,omitempty"`
}

// SearchFoodsResponse は search_foods の応答
type SearchFoodsResponse struct {
	Found      bool                  `json:"found"`
	Count      int                   `json:"count"`
	Candidates []nutrition.Candidate `json:"candidates"`
}

// SummaryResponse は daily_summary の応答
type SummaryResponse struct {
	Period string                 `json:"period"`
	Found  bool                   `json:"found"`
	Day    *foodlog.DailySummary  `json:"day,omitempty"`
	Range  *foodlog.PeriodSummary `json:"range,omitempty"`
}

func (s *Server) addTools() {
	logMeal := mcp.NewTool("log_meal",
		mcp.WithDescription("Parse a free-text meal description, match each food against the nutrition database and return scaled nutrients with totals. Set save=true with a user_id to store the meal."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("What was eaten, e.g. \"2 eggs and a slice of toast\""),
		),
		mcp.WithString("user_id", mcp.Description("User to store the meal for (required when save is true)")),
		mcp.WithString("date", mcp.Description("Log date in YYYY-MM-DD (default: today)")),
		mcp.WithString("meal_type",
			mcp.Description("Meal type"),
			mcp.Enum(string(foodlog.MealBreakfast), string(foodlog.MealLunch), string(foodlog.MealDinner), string(foodlog.MealSnack)),
		),
		mcp.WithBoolean("save", mcp.Description("Persist the matched items"), mcp.DefaultBool(false)),
		mcp.WithOutputSchema[LogMealResponse](),
	)
	s.mcpServer.AddTool(logMeal, s.handleLogMeal)

	searchFoods := mcp.NewTool("search_foods",
		mcp.WithDescription("Search the nutrition database for foods matching a name"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Food name to search for"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of candidates (default: %d, max: %d)", search.DefaultCandidateLimit, maxSearchLimit)),
			mcp.DefaultNumber(search.DefaultCandidateLimit),
			mcp.Min(1),
			mcp.Max(maxSearchLimit),
		),
		mcp.WithOutputSchema[SearchFoodsResponse](),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(searchFoods, s.handleSearchFoods)

	summary := mcp.NewTool("daily_summary",
		mcp.WithDescription("Return stored nutrition totals for a user's day, week (Monday start) or month"),
		mcp.WithString("user_id", mcp.Required(), mcp.MinLength(1), mcp.Description("User ID")),
		mcp.WithString("date", mcp.Description("Any date in the period, YYYY-MM-DD (default: today)")),
		mcp.WithString("period",
			mcp.Description("Aggregation period"),
			mcp.Enum("day", "week", "month"),
			mcp.DefaultString("day"),
		),
		mcp.WithOutputSchema[SummaryResponse](),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(summary, s.handleSummary)
}

func (s *Server) handleLogMeal(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil || strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("Missing required parameter 'text'"), nil
	}

	save := request.GetBool("save", false)
	userID := strings.TrimSpace(request.GetString("user_id", ""))
	if save && userID == "" {
		return mcp.NewToolResultError("Parameter 'user_id' is required when save is true"), nil
	}
	date, err := s.parseDate(request.GetString("date", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mealType, err := foodlog.ParseMealType(request.GetString("meal_type", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.analyzer.Run(ctx, text)
	if err != nil {
		s.log.Error("meal analysis failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Meal analysis failed: %v", err)), nil
	}

	response := LogMealResponse{Result: result}
	if save {
		log, err := s.logs.CreateLog(ctx, foodlog.CreateLogParams{
			UserID:   userID,
			Date:     date,
			MealType: mealType,
			RawText:  text,
			Result:   result,
		})
		if err != nil {
			s.log.Error("failed to save food log", "userID", userID, "error", err)
			return mcp.NewToolResultError(fmt.Sprintf("Failed to save food log: %v", err)), nil
		}
		response.Log = log
	}

	return structured(response)
}

func (s *Server) handleSearchFoods(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil || strings.TrimSpace(name) == "" {
		return mcp.NewToolResultError("Missing required parameter 'name'"), nil
	}

	limit := int(request.GetFloat("limit", search.DefaultCandidateLimit))
	if limit <= 0 {
		limit = search.DefaultCandidateLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	candidates, err := s.searcher.Retrieve(ctx, name, limit)
	if err != nil {
		s.log.Error("food search failed", "food", name, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Search failed: %v", err)), nil
	}
	if candidates == nil {
		candidates = []nutrition.Candidate{}
	}

	return structured(SearchFoodsResponse{
		Found:      len(candidates) > 0,
		Count:      len(candidates),
		Candidates: candidates,
	})
}

func (s *Server) handleSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil || strings.TrimSpace(userID) == "" {
		return mcp.NewToolResultError("Missing required parameter 'user_id'"), nil
	}
	date, err := s.parseDate(request.GetString("date", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	period := request.GetString("period", "day")
	response := SummaryResponse{Period: period}

	switch period {
	case "day":
		day, err := s.logs.GetDailySummary(ctx, userID, date)
		switch {
		case errors.Is(err, foodlog.ErrSummaryNotFound):
		case err != nil:
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get summary: %v", err)), nil
		default:
			response.Found = true
			response.Day = day
		}
	case "week", "month":
		get := s.logs.GetWeeklySummary
		if period == "month" {
			get = s.logs.GetMonthlySummary
		}
		rng, err := get(ctx, userID, date)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get summary: %v", err)), nil
		}
		response.Found = len(rng.Days) > 0
		response.Range = rng
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Unknown period %q (day, week or month)", period)), nil
	}

	return structured(response)
}

func (s *Server) parseDate(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return foodlog.DateOf(s.now()), nil
	}
	return foodlog.ParseDate(value)
}

// structured は構造化データと互換用のJSONテキストを併せて返す
func structured(response any) (*mcp.CallToolResult, error) {
	body, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultStructured(response, string(body)), nil
}

// checkHealthWithCache は疎通確認の結果を一定時間キャッシュする
func (s *Server) checkHealthWithCache(ctx context.Context) error {
	if s.health == nil {
		return nil
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	if !s.lastHealthCheck.IsZero() && time.Since(s.lastHealthCheck) < healthCacheDuration {
		return s.lastHealthError
	}

	s.lastHealthError = s.health.Ping(ctx)
	s.lastHealthCheck = time.Now()
	return s.lastHealthError
}

// Handler は /health、/mcp、メトリクスを載せた HTTP ハンドラを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := s.checkHealthWithCache(r.Context()); err != nil {
			s.log.Error("health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	mux.Handle("/mcp", server.NewStreamableHTTPServer(
		s.mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
	))

	if s.metrics != nil && s.metricsAt != "" {
		mux.Handle(s.metricsAt, s.metrics)
	}

	return mux
}

// ListenAndServe は HTTP で待ち受け、ctx が終了したらシャットダウンする
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting MCP server", "transport", "http", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down MCP server: %w", err)
		}
		return nil
	}
}

// ServeStdio は標準入出力で MCP を提供する
func (s *Server) ServeStdio() error {
	s.log.Info("starting MCP server", "transport", "stdio")
	return server.ServeStdio(s.mcpServer)
}
