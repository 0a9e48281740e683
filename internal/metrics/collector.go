// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/agent/debate"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
// 同时实现 middleware.MetricsCollector 与 debate.Recorder.
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmRetries         *prometheus.CounterVec

	// 辩论指标
	debateSessionsTotal   *prometheus.CounterVec
	debateSessionDuration *prometheus.HistogramVec
	debateSessionsActive  prometheus.Gauge
	debateRounds          prometheus.Histogram
	debateTurnsTotal      *prometheus.CounterVec
	debateValidations     *prometheus.CounterVec
	debateValidatorErrors *prometheus.CounterVec
	debateVerdicts        *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器. reg 为 nil 时注册到 prometheus.DefaultRegisterer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// LLM 指标
	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	c.llmRetries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_retries_total",
			Help:      "Total number of retried LLM calls",
		},
		[]string{"provider"},
	)

	// 辩论指标
	c.debateSessionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debate_sessions_total",
			Help:      "Total number of finished debate sessions",
		},
		[]string{"status", "converged"},
	)

	c.debateSessionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "debate_session_duration_seconds",
			Help:      "Debate session duration in seconds",
			Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"status"},
	)

	c.debateSessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "debate_sessions_active",
			Help:      "Number of running debate sessions",
		},
	)

	c.debateRounds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "debate_rounds",
			Help:      "Rounds completed per debate session",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		},
	)

	c.debateTurnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debate_turns_total",
			Help:      "Total number of recorded debate turns",
		},
		[]string{"role"},
	)

	c.debateValidations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debate_validations_total",
			Help:      "Grounding validation outcomes",
		},
		[]string{"result"},
	)

	c.debateValidatorErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debate_validator_errors_total",
			Help:      "Validator calls that failed and were resolved by policy",
		},
		[]string{"policy"},
	)

	c.debateVerdicts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debate_verdicts_total",
			Help:      "Final verdicts by confidence",
		},
		[]string{"verdict", "confidence"},
	)

	// 缓存指标
	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(provider, model string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordLLMTokens 记录 Token 用量
func (c *Collector) RecordLLMTokens(provider, model string, promptTokens, completionTokens int) {
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// RecordLLMRetry 记录一次重试, 由 retry.RetryPolicy.OnRetry 调用
func (c *Collector) RecordLLMRetry(provider string) {
	c.llmRetries.WithLabelValues(provider).Inc()
}

// =============================================================================
// ⚖️ 辩论指标记录
// =============================================================================

// SessionStarted 会话开始
func (c *Collector) SessionStarted() { c.debateSessionsActive.Inc() }

// SessionFinished 会话结束
func (c *Collector) SessionFinished() { c.debateSessionsActive.Dec() }

// RecordTurn 记录一条发言
func (c *Collector) RecordTurn(role debate.Role, _ int) {
	c.debateTurnsTotal.WithLabelValues(string(role)).Inc()
}

// RecordValidation 记录一次校验结果
func (c *Collector) RecordValidation(accepted bool) {
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	c.debateValidations.WithLabelValues(result).Inc()
}

// RecordValidatorError 记录校验器调用失败
func (c *Collector) RecordValidatorError(policy debate.FailurePolicy) {
	c.debateValidatorErrors.WithLabelValues(string(policy)).Inc()
}

// RecordSession 记录会话结果
func (c *Collector) RecordSession(result *debate.DebateResult, duration time.Duration, err error) {
	status := "success"
	if err != nil || result == nil {
		status = "failure"
	}
	c.debateSessionDuration.WithLabelValues(status).Observe(duration.Seconds())
	if result == nil {
		c.debateSessionsTotal.WithLabelValues(status, "false").Inc()
		return
	}
	c.debateSessionsTotal.WithLabelValues(status, strconv.FormatBool(result.Converged)).Inc()
	c.debateRounds.Observe(float64(result.TotalRounds))
	c.debateVerdicts.WithLabelValues(result.FinalVerdict, string(result.ConfidenceLevel)).Inc()
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
