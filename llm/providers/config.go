package providers

import "time"

// BaseProviderConfig 所有 Provider 共享的基础配置字段。
type BaseProviderConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// GeminiConfig Gemini Provider 配置
type GeminiConfig struct {
	BaseProviderConfig `yaml:",inline"`
}

// DeepSeekConfig DeepSeek Provider 配置
type DeepSeekConfig struct {
	BaseProviderConfig `yaml:",inline"`
}
