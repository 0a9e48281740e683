package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	llmpkg "github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm/retry"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm/tokenizer"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/types"
)

// Handler 处理一个请求并返回一个响应.
type Handler func(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatResponse, error)

// Middleware 将处理器包裹并添加额外功能.
type Middleware func(next Handler) Handler

// Chain 表示中间件链.
type Chain struct {
	middlewares []Middleware
	mu          sync.RWMutex
}

// NewChain 创建新的中间件链.
func NewChain(middlewares ...Middleware) *Chain {
	c := &Chain{}
	for _, m := range middlewares {
		c.Use(m)
	}
	return c
}

// Use 将中间件添加到链中. nil 中间件被忽略, 便于按配置条件装配.
func (c *Chain) Use(m Middleware) *Chain {
	if m == nil {
		return c
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, m)
	return c
}

// Then 用链中的所有中间件包裹一个处理器.
func (c *Chain) Then(h Handler) Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// 按倒序应用中间件
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h
}

// Len 返回链中的中间件数量.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.middlewares)
}

// ProviderHandler 把 Provider.Completion 适配为 Handler.
func ProviderHandler(p llmpkg.Provider) Handler {
	return p.Completion
}

// 内置中间件

// LoggingMiddleware 记录请求/响应详情.
func LoggingMiddleware(logger *zap.Logger, provider string) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "llm"), zap.String("provider", provider))
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatResponse, error) {
			start := time.Now()
			logger.Debug("llm request", zap.String("model", req.Model), zap.Int("messages", len(req.Messages)))

			resp, err := next(ctx, req)

			duration := time.Since(start)
			if err != nil {
				logger.Warn("llm request failed", zap.Duration("duration", duration), zap.Error(err))
			} else {
				logger.Debug("llm response",
					zap.Int("total_tokens", resp.Usage.TotalTokens),
					zap.Duration("duration", duration),
				)
			}

			return resp, err
		}
	}
}

// TimeoutMiddleware 对请求添加超时.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	if timeout <= 0 {
		return nil
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatResponse, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// RetryMiddleware 按策略重试失败的请求, 耗尽后返回 GENERATION_TRANSPORT_ERROR.
func RetryMiddleware(policy *retry.RetryPolicy, provider string, logger *zap.Logger) Middleware {
	retryer := retry.NewBackoffRetryer(policy, logger)
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatResponse, error) {
			resp, err := retry.DoWithResultTyped[*llmpkg.ChatResponse](retryer, ctx, func() (*llmpkg.ChatResponse, error) {
				return next(ctx, req)
			})
			if err != nil {
				return nil, types.NewError(types.ErrGenerationTransport, fmt.Sprintf("%s completion failed", provider)).
					WithCause(err).
					WithProvider(provider).
					WithRetryable(true)
			}
			return resp, nil
		}
	}
}

// RateLimitMiddleware 在每次调用前等待限流器放行.
func RateLimitMiddleware(limiter BlockingRateLimiter) Middleware {
	if limiter == nil {
		return nil
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatResponse, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return next(ctx, req)
		}
	}
}

// ResponseCheckMiddleware 把空响应 (无候选或空文本, 如安全拦截) 转成可重试的上游错误,
// 须放在 RetryMiddleware 内侧.
func ResponseCheckMiddleware(provider string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatResponse, error) {
			resp, err := next(ctx, req)
			if err != nil {
				return nil, err
			}
			if _, err := llmpkg.FirstContent(resp); err != nil {
				return nil, &llmpkg.Error{
					Code:      llmpkg.ErrUpstreamError,
					Message:   fmt.Sprintf("%s returned an empty completion: %v", provider, err),
					Retryable: true,
					Provider:  provider,
				}
			}
			return resp, nil
		}
	}
}

// BlockingRateLimiter 定义阻塞式速率限制接口.
type BlockingRateLimiter interface {
	Wait(ctx context.Context) error
}

// MetricsMiddleware 收集请求的指标. counter 非空时为缺少 usage 的响应估算 prompt token.
func MetricsMiddleware(collector MetricsCollector, provider string, counter tokenizer.Counter) Middleware {
	if collector == nil {
		return nil
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			duration := time.Since(start)

			collector.RecordLLMRequest(provider, req.Model, duration, err == nil)
			if resp != nil {
				prompt := resp.Usage.PromptTokens
				if prompt == 0 && counter != nil {
					prompt = countPrompt(counter, req)
				}
				collector.RecordLLMTokens(provider, req.Model, prompt, resp.Usage.CompletionTokens)
			}

			return resp, err
		}
	}
}

func countPrompt(counter tokenizer.Counter, req *llmpkg.ChatRequest) int {
	total := 0
	for _, m := range req.Messages {
		n, err := counter.CountTokens(m.Content)
		if err != nil {
			return 0
		}
		total += n
	}
	return total
}

// MetricsCollector 定义指标收集接口.
type MetricsCollector interface {
	RecordLLMRequest(provider, model string, duration time.Duration, success bool)
	RecordLLMTokens(provider, model string, promptTokens, completionTokens int)
}

// CacheMiddleware 缓存成功响应. 缓存读写失败只降级为直连, 不影响请求.
func CacheMiddleware(cache Cache) Middleware {
	if cache == nil {
		return nil
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatResponse, error) {
			key := cache.Key(req)
			if cached, ok := cache.Get(ctx, key); ok {
				return cached, nil
			}

			resp, err := next(ctx, req)
			if err == nil {
				cache.Set(ctx, key, resp)
			}

			return resp, err
		}
	}
}

// Cache 定义缓存接口.
type Cache interface {
	Key(req *llmpkg.ChatRequest) string
	Get(ctx context.Context, key string) (*llmpkg.ChatResponse, bool)
	Set(ctx context.Context, key string, resp *llmpkg.ChatResponse)
}

// RecoveryMiddleware 从 panic 中恢复.
func RecoveryMiddleware(onPanic func(any)) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llmpkg.ChatRequest) (resp *llmpkg.ChatResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					if onPanic != nil {
						onPanic(r)
					}
					err = &PanicError{Value: r}
				}
			}()
			return next(ctx, req)
		}
	}
}

// PanicError 表示已恢复的 panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", e.Value)
}

// TracingMiddleware 添加分布式追踪.
func TracingMiddleware(tracer trace.Tracer, provider string) Middleware {
	if tracer == nil {
		return nil
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatResponse, error) {
			ctx, span := tracer.Start(ctx, "llm.completion",
				trace.WithAttributes(
					attribute.String("llm.provider", provider),
					attribute.String("llm.model", req.Model),
					attribute.Int("llm.messages", len(req.Messages)),
				),
			)
			defer span.End()

			resp, err := next(ctx, req)

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else if resp != nil {
				span.SetAttributes(attribute.Int("llm.total_tokens", resp.Usage.TotalTokens))
			}

			return resp, err
		}
	}
}
