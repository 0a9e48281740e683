// Package tokenizer 提供统一的 Token 计数接口，
// 支持 tiktoken 精确计数与估算器回退，用于 Prompt Token 指标。
package tokenizer

import (
	"sync"

	"go.uber.org/zap"
)

// Counter 是统一的 token 计数接口.
type Counter interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Name 返回计数器名称.
	Name() string
}

// 全局计数器注册表, 按模型名称缓存.
var (
	modelCounters   = make(map[string]Counter)
	modelCountersMu sync.RWMutex
)

// RegisterCounter 为给定模型注册计数器.
func RegisterCounter(model string, c Counter) {
	modelCountersMu.Lock()
	defer modelCountersMu.Unlock()
	modelCounters[model] = c
}

// ForModel 返回模型的计数器; 未注册时创建 tiktoken 计数器并在失败时回退到估算器.
func ForModel(model string, logger *zap.Logger) Counter {
	modelCountersMu.RLock()
	c, ok := modelCounters[model]
	modelCountersMu.RUnlock()
	if ok {
		return c
	}

	c = NewFallbackCounter(NewTiktokenCounter(model), NewEstimator(), logger)
	RegisterCounter(model, c)
	return c
}

// FallbackCounter 优先使用 primary, primary 出错后永久切换到 fallback.
// tiktoken 首次使用需要下载编码数据, 离线环境下会失败.
type FallbackCounter struct {
	primary  Counter
	fallback Counter
	logger   *zap.Logger

	mu       sync.Mutex
	degraded bool
}

// NewFallbackCounter 创建带回退的计数器.
func NewFallbackCounter(primary, fallback Counter, logger *zap.Logger) *FallbackCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackCounter{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With(zap.String("component", "tokenizer")),
	}
}

func (f *FallbackCounter) CountTokens(text string) (int, error) {
	f.mu.Lock()
	degraded := f.degraded
	f.mu.Unlock()

	if !degraded {
		n, err := f.primary.CountTokens(text)
		if err == nil {
			return n, nil
		}
		f.mu.Lock()
		f.degraded = true
		f.mu.Unlock()
		f.logger.Warn("tokenizer degraded to estimator",
			zap.String("primary", f.primary.Name()),
			zap.Error(err),
		)
	}
	return f.fallback.CountTokens(text)
}

func (f *FallbackCounter) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.degraded {
		return f.fallback.Name()
	}
	return f.primary.Name()
}
