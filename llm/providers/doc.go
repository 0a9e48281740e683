/*
包 providers 提供跨模型服务商的通用适配能力，是 gemini、deepseek、
openaicompat 子包的公共基础层。

# 核心类型

  - BaseProviderConfig: 所有 Provider 共享的基础配置（APIKey、BaseURL、Model、Timeout）
  - OpenAICompat* 系列: OpenAI 兼容 API 的通用请求/响应结构体

# 核心函数

  - MapHTTPError: 将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - TransportError: 网络层错误统一为可重试的上游错误
  - ConvertMessagesToOpenAI / ToLLMChatResponse: 消息格式转换
  - ChooseModel: 按优先级选择模型（请求 > 默认 > 兜底）
*/
package providers
