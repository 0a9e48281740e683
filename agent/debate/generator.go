package debate

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm/middleware"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm/ratelimit"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm/retry"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm/tokenizer"
)

// Generator 与具体模型无关的文本生成能力. 编排器只依赖此接口.
type Generator interface {
	// Name 发言者标识, 写入 DebateTurn.Speaker.
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorOptions 配置 ProviderGenerator 的中间件链.
type GeneratorOptions struct {
	// Speaker 为空时使用 provider 名称.
	Speaker     string
	Model       string
	Temperature float32
	MaxTokens   int
	// Timeout 单次调用超时, 0 表示不限制.
	Timeout time.Duration
	// Pacer 每次调用 (含重试) 前等待的最小间隔闸门.
	Pacer *ratelimit.Pacer
	Retry *retry.RetryPolicy
	// Metrics 与 Tracer 可为空.
	Metrics middleware.MetricsCollector
	Tracer  trace.Tracer
	Counter tokenizer.Counter
	Cache   middleware.Cache
}

// ProviderGenerator 通过中间件链把 llm.Provider 适配为 Generator.
type ProviderGenerator struct {
	speaker string
	opts    GeneratorOptions
	handler middleware.Handler
	logger  *zap.Logger
}

// NewProviderGenerator 组装链: recovery → tracing → logging → cache → retry → pacer → metrics → response check → timeout → provider.
// pacer 位于 retry 内侧, 每次重试同样受最小间隔约束.
func NewProviderGenerator(p llm.Provider, opts GeneratorOptions, logger *zap.Logger) *ProviderGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	speaker := opts.Speaker
	if speaker == "" {
		speaker = p.Name()
	}
	policy := opts.Retry
	if policy == nil {
		policy = retry.DefaultRetryPolicy()
	}
	var limiter middleware.BlockingRateLimiter
	if opts.Pacer != nil {
		limiter = opts.Pacer
	}
	if opts.Counter == nil && opts.Metrics != nil {
		opts.Counter = tokenizer.ForModel(opts.Model, logger)
	}

	log := logger.With(zap.String("component", "generator"), zap.String("speaker", speaker))
	chain := middleware.NewChain(
		middleware.RecoveryMiddleware(func(v any) {
			log.Error("provider panicked", zap.Any("panic", v))
		}),
		middleware.TracingMiddleware(opts.Tracer, p.Name()),
		middleware.LoggingMiddleware(log, p.Name()),
	)
	if opts.Cache != nil {
		chain.Use(middleware.CacheMiddleware(opts.Cache))
	}
	chain.Use(middleware.RetryMiddleware(policy, p.Name(), log)).
		Use(middleware.RateLimitMiddleware(limiter)).
		Use(middleware.MetricsMiddleware(opts.Metrics, p.Name(), opts.Counter)).
		Use(middleware.ResponseCheckMiddleware(p.Name())).
		Use(middleware.TimeoutMiddleware(opts.Timeout))

	return &ProviderGenerator{
		speaker: speaker,
		opts:    opts,
		handler: chain.Then(middleware.ProviderHandler(p)),
		logger:  log,
	}
}

func (g *ProviderGenerator) Name() string { return g.speaker }

// Generate 发送单条 user 消息并返回首个候选文本.
func (g *ProviderGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := llm.UserPrompt(g.opts.Model, prompt, g.opts.Temperature)
	req.MaxTokens = g.opts.MaxTokens
	resp, err := g.handler(ctx, req)
	if err != nil {
		return "", err
	}
	return llm.FirstContent(resp)
}

// GeneratorFunc 便于测试和组合的函数适配器.
type GeneratorFunc struct {
	Speaker string
	Fn      func(ctx context.Context, prompt string) (string, error)
}

func (f GeneratorFunc) Name() string { return f.Speaker }

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f.Fn(ctx, prompt)
}
