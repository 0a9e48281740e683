package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/config"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm/providers"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm/providers/deepseek"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm/providers/gemini"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/types"
)

// NewProviderFromConfig 按名称创建 Provider. 支持 gemini 与 deepseek.
func NewProviderFromConfig(name string, cfg config.ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	base := providers.BaseProviderConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}

	switch name {
	case "gemini":
		return gemini.NewGeminiProvider(providers.GeminiConfig{BaseProviderConfig: base}, logger), nil
	case "deepseek":
		return deepseek.NewDeepSeekProvider(providers.DeepSeekConfig{BaseProviderConfig: base}, logger), nil
	default:
		return nil, types.NewConfigurationError(fmt.Sprintf("unknown provider %q (supported: %v)", name, SupportedProviders()))
	}
}

// SupportedProviders 内置 Provider 名称
func SupportedProviders() []string {
	return []string{"gemini", "deepseek"}
}

// NewRegistryFromConfig 构建包含全部内置 Provider 的注册表.
func NewRegistryFromConfig(cfg config.ProvidersConfig, logger *zap.Logger) (*llm.ProviderRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := llm.NewProviderRegistry()
	for _, name := range SupportedProviders() {
		pcfg, ok := cfg.Provider(name)
		if !ok {
			return nil, types.NewConfigurationError(fmt.Sprintf("provider %q has no configuration section", name))
		}
		p, err := NewProviderFromConfig(name, pcfg, logger)
		if err != nil {
			return nil, err
		}
		reg.Register(name, p)
		logger.Debug("provider registered", zap.String("provider", name), zap.String("model", pcfg.Model))
	}
	return reg, nil
}
