package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jinford/nutrilog/internal/core/foodlog"
	"github.com/jinford/nutrilog/internal/core/llm"
	"github.com/jinford/nutrilog/internal/core/match"
	"github.com/jinford/nutrilog/internal/core/search"
)

const namespace = "nutrilog"

// Metrics はパイプラインの Prometheus メトリクスを保持する。
// nil の *Metrics に対する記録は何もしない。
type Metrics struct {
	registry *prometheus.Registry

	strategyOutcomes  *prometheus.CounterVec
	selectionOutcomes *prometheus.CounterVec
	itemFailures      *prometheus.CounterVec
	pipelineDuration  prometheus.Histogram

	llmRequests *prometheus.CounterVec
	llmTokens   *prometheus.CounterVec
	llmDuration *prometheus.HistogramVec
}

// New は専用レジストリにメトリクスを登録して返す
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		strategyOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "strategy_total",
				Help:      "Retrieval strategy executions by outcome",
			},
			[]string{"strategy", "outcome"},
		),
		selectionOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "match",
				Name:      "selection_total",
				Help:      "Candidate selections by outcome",
			},
			[]string{"outcome"},
		),
		itemFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "item_failures_total",
				Help:      "Food items that failed at a pipeline stage",
			},
			[]string{"stage"},
		),
		pipelineDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "duration_seconds",
				Help:      "End-to-end duration of a meal pipeline run",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
			},
		),

		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "llm",
				Name:      "requests_total",
				Help:      "Completion requests by purpose and status",
			},
			[]string{"purpose", "status"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "llm",
				Name:      "tokens_total",
				Help:      "Tokens reported by the completion API",
			},
			[]string{"purpose"},
		),
		llmDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "llm",
				Name:      "request_duration_seconds",
				Help:      "Completion request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"purpose"},
		),
	}
}

// Registry はメトリクスのレジストリを返す
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler は /metrics 用の HTTP ハンドラを返す
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordStrategy は search.StrategyRecorder を実装する
func (m *Metrics) RecordStrategy(strategy string, outcome search.StrategyOutcome) {
	if m == nil {
		return
	}
	m.strategyOutcomes.WithLabelValues(strategy, string(outcome)).Inc()
}

// RecordSelection は match.Recorder を実装する
func (m *Metrics) RecordSelection(outcome string) {
	if m == nil {
		return
	}
	m.selectionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordItemFailure は foodlog.PipelineRecorder を実装する
func (m *Metrics) RecordItemFailure(stage string) {
	if m == nil {
		return
	}
	m.itemFailures.WithLabelValues(stage).Inc()
}

// ObservePipelineDuration は foodlog.PipelineRecorder を実装する
func (m *Metrics) ObservePipelineDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.pipelineDuration.Observe(d.Seconds())
}

var (
	_ search.StrategyRecorder  = (*Metrics)(nil)
	_ match.Recorder           = (*Metrics)(nil)
	_ foodlog.PipelineRecorder = (*Metrics)(nil)
)

// InstrumentedGenerator は呼び出し回数・トークン数・レイテンシを記録する llm.Generator
type InstrumentedGenerator struct {
	next    llm.Generator
	metrics *Metrics
	purpose string
}

// InstrumentGenerator は next を計測付きで包む。purpose は "parse" や "select" などの用途名。
func InstrumentGenerator(next llm.Generator, m *Metrics, purpose string) llm.Generator {
	if m == nil {
		return next
	}
	return &InstrumentedGenerator{next: next, metrics: m, purpose: purpose}
}

func (g *InstrumentedGenerator) GenerateCompletion(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := g.next.GenerateCompletion(ctx, req)
	g.metrics.llmDuration.WithLabelValues(g.purpose).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	g.metrics.llmRequests.WithLabelValues(g.purpose, status).Inc()
	if resp.TokensUsed > 0 {
		g.metrics.llmTokens.WithLabelValues(g.purpose).Add(float64(resp.TokensUsed))
	}
	return resp, err
}
