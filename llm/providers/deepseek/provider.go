package deepseek

import (
	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm/providers"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm/providers/openaicompat"
)

// DefaultBaseURL DeepSeek API 默认地址
const DefaultBaseURL = "https://api.deepseek.com"

// DeepSeekProvider 实现 DeepSeek LLM 提供者.
type DeepSeekProvider struct {
	*openaicompat.Provider
}

// NewDeepSeekProvider 创建新的 DeepSeek 提供者实例.
func NewDeepSeekProvider(cfg providers.DeepSeekConfig, logger *zap.Logger) *DeepSeekProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	return &DeepSeekProvider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName:   "deepseek",
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			DefaultModel:   cfg.Model,
			FallbackModel:  "deepseek-chat",
			Timeout:        cfg.Timeout,
			EndpointPath:   "/chat/completions",
			ModelsEndpoint: "/models",
			RequestHook:    deepseekRequestHook,
		}, logger),
	}
}

// deepseekRequestHook 在推理模式下自动选择 deepseek-reasoner.
func deepseekRequestHook(req *llm.ChatRequest, body *providers.OpenAICompatRequest) {
	if req.Model != "" {
		return
	}
	if mode := req.Metadata["reasoning_mode"]; mode == "thinking" || mode == "extended" {
		body.Model = "deepseek-reasoner"
	}
}
