package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm"
)

// RetryPolicy 定义重试策略配置
// Multiplier 为 1 且关闭抖动时即为固定间隔退避
type RetryPolicy struct {
	MaxRetries      int                                               // 最大重试次数（0 表示不重试）
	InitialDelay    time.Duration                                     // 初始延迟时间
	MaxDelay        time.Duration                                     // 最大延迟时间
	Multiplier      float64                                           // 延迟时间倍增因子
	Jitter          bool                                              // 是否添加随机抖动
	RetryableErrors []error                                           // 可重试的错误类型（为空则由 ShouldRetry 或默认规则判断）
	ShouldRetry     func(err error) bool                              // 自定义可重试判断
	OnRetry         func(attempt int, err error, delay time.Duration) // 重试回调
}

// DefaultRetryPolicy 返回默认的重试策略：共 3 次尝试，固定 5 秒间隔
func DefaultRetryPolicy() *RetryPolicy {
	return FixedPolicy(3, 5*time.Second)
}

// FixedPolicy 返回固定间隔策略，attempts 为总尝试次数（含首次）
func FixedPolicy(attempts int, delay time.Duration) *RetryPolicy {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryPolicy{
		MaxRetries:   attempts - 1,
		InitialDelay: delay,
		MaxDelay:     delay,
		Multiplier:   1.0,
		Jitter:       false,
	}
}

// Attempts 返回总尝试次数
func (p *RetryPolicy) Attempts() int {
	return p.MaxRetries + 1
}

// Retryer 重试器接口
type Retryer interface {
	// Do 执行函数，失败时根据策略重试
	Do(ctx context.Context, fn func() error) error

	// DoWithResult 执行函数并返回结果，失败时根据策略重试
	DoWithResult(ctx context.Context, fn func() (any, error)) (any, error)
}

// ExhaustedError 表示重试次数耗尽，保留最后一次错误
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("重试 %d 次后仍失败: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// backoffRetryer 退避重试器实现
type backoffRetryer struct {
	policy *RetryPolicy
	logger *zap.Logger
}

// NewBackoffRetryer 创建退避重试器
func NewBackoffRetryer(policy *RetryPolicy, logger *zap.Logger) Retryer {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// 参数校验
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay < 0 {
		policy.InitialDelay = 0
	}
	if policy.MaxDelay < policy.InitialDelay {
		policy.MaxDelay = policy.InitialDelay
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 1.0
	}

	return &backoffRetryer{
		policy: policy,
		logger: logger.With(zap.String("component", "retry")),
	}
}

// Do 实现 Retryer.Do
func (r *backoffRetryer) Do(ctx context.Context, fn func() error) error {
	_, err := r.DoWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

// DoWithResult 实现 Retryer.DoWithResult
func (r *backoffRetryer) DoWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	var lastErr error
	var result any

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		// 第一次执行不延迟
		if attempt > 0 {
			delay := r.calculateDelay(attempt)

			r.logger.Debug("重试中",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			// 等待延迟，同时监听 context 取消
			if err := sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("重试被取消: %w", err)
			}
		}

		result, lastErr = fn()
		if lastErr == nil {
			if attempt > 0 {
				r.logger.Info("重试成功", zap.Int("attempt", attempt))
			}
			return result, nil
		}

		if ctx.Err() != nil {
			return nil, lastErr
		}

		if !r.isRetryable(lastErr) {
			r.logger.Debug("错误不可重试", zap.Error(lastErr))
			return nil, lastErr
		}
	}

	r.logger.Warn("重试次数耗尽",
		zap.Int("attempts", r.policy.MaxRetries+1),
		zap.Error(lastErr),
	)

	return nil, &ExhaustedError{Attempts: r.policy.MaxRetries + 1, Last: lastErr}
}

// calculateDelay 计算延迟时间：delay = initial * multiplier^(attempt-1)
func (r *backoffRetryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))

	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}

	// 添加随机抖动（±25%）
	if r.policy.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}

	if delay < float64(r.policy.InitialDelay) {
		delay = float64(r.policy.InitialDelay)
	}

	return time.Duration(delay)
}

// isRetryable 检查错误是否可重试
func (r *backoffRetryer) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	if r.policy.ShouldRetry != nil {
		return r.policy.ShouldRetry(err)
	}

	// 未配置可重试错误列表时所有错误都可重试
	if len(r.policy.RetryableErrors) == 0 {
		return true
	}

	for _, retryableErr := range r.policy.RetryableErrors {
		if errors.Is(err, retryableErr) {
			return true
		}
	}

	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsRetryableError 按传输错误分类: 带 Retryable 标记的 llm.Error 依标记判断
// (401/403/配额耗尽不重试), context.Canceled 不重试, 其余视为瞬时故障.
// 用作 RetryPolicy.ShouldRetry.
func IsRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return true
}
