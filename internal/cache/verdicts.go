package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/agent/debate"
	llmpkg "github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm"
)

// HitRecorder 记录命中率. internal/metrics.Collector 实现此接口.
type HitRecorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

type nopHits struct{}

func (nopHits) RecordCacheHit(string)  {}
func (nopHits) RecordCacheMiss(string) {}

// store 是缓存访问接口, 由 Manager 实现.
type store interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// VerdictStore 把校验判定存入 Redis, 实现 validator.VerdictCache.
// 读写失败降级为未命中, 不影响辩论.
type VerdictStore struct {
	store  store
	ttl    time.Duration
	hits   HitRecorder
	logger *zap.Logger
}

// NewVerdictStore 创建判定缓存. ttl 为 0 时使用 Manager 默认值.
func NewVerdictStore(m *Manager, ttl time.Duration, hits HitRecorder, logger *zap.Logger) *VerdictStore {
	if hits == nil {
		hits = nopHits{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerdictStore{store: m, ttl: ttl, hits: hits, logger: logger.With(zap.String("component", "verdict_cache"))}
}

// Get 读取判定.
func (s *VerdictStore) Get(ctx context.Context, key string) (debate.ValidationResult, bool) {
	var v debate.ValidationResult
	if err := s.store.GetJSON(ctx, key, &v); err != nil {
		if !IsCacheMiss(err) {
			s.logger.Warn("verdict cache read failed", zap.Error(err))
		}
		s.hits.RecordCacheMiss("verdict")
		return debate.ValidationResult{}, false
	}
	s.hits.RecordCacheHit("verdict")
	return v, true
}

// Set 写入判定.
func (s *VerdictStore) Set(ctx context.Context, key string, result debate.ValidationResult) {
	if err := s.store.SetJSON(ctx, key, result, s.ttl); err != nil {
		s.logger.Warn("verdict cache write failed", zap.Error(err))
	}
}

// ResponseStore 缓存完整的 LLM 响应, 实现 middleware.Cache.
// 只挂在共识合成的调用链上: 相同记录的合成请求返回相同结果.
type ResponseStore struct {
	store  store
	ttl    time.Duration
	hits   HitRecorder
	logger *zap.Logger
}

// NewResponseStore 创建响应缓存.
func NewResponseStore(m *Manager, ttl time.Duration, hits HitRecorder, logger *zap.Logger) *ResponseStore {
	if hits == nil {
		hits = nopHits{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseStore{store: m, ttl: ttl, hits: hits, logger: logger.With(zap.String("component", "response_cache"))}
}

// Key 由模型、采样参数与消息计算 SHA-256.
func (s *ResponseStore) Key(req *llmpkg.ChatRequest) string {
	payload, _ := json.Marshal(struct {
		Model       string           `json:"model"`
		Temperature float32          `json:"temperature"`
		MaxTokens   int              `json:"max_tokens"`
		Messages    []llmpkg.Message `json:"messages"`
	}{req.Model, req.Temperature, req.MaxTokens, req.Messages})
	sum := sha256.Sum256(payload)
	return "llm:" + hex.EncodeToString(sum[:])
}

// Get 读取响应.
func (s *ResponseStore) Get(ctx context.Context, key string) (*llmpkg.ChatResponse, bool) {
	var resp llmpkg.ChatResponse
	if err := s.store.GetJSON(ctx, key, &resp); err != nil {
		if !IsCacheMiss(err) {
			s.logger.Warn("response cache read failed", zap.Error(err))
		}
		s.hits.RecordCacheMiss("llm_response")
		return nil, false
	}
	s.hits.RecordCacheHit("llm_response")
	return &resp, true
}

// Set 写入响应.
func (s *ResponseStore) Set(ctx context.Context, key string, resp *llmpkg.ChatResponse) {
	if resp == nil {
		return
	}
	if err := s.store.SetJSON(ctx, key, resp, s.ttl); err != nil {
		s.logger.Warn("response cache write failed", zap.Error(err))
	}
}
