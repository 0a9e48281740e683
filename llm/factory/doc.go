// 包 factory 把 config.ProvidersConfig 转换为可用的 llm.Provider 与
// llm.ProviderRegistry。未知名称返回 CONFIGURATION_ERROR。
package factory
