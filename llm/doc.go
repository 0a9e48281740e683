/*
包 llm 提供统一的大语言模型接入层：Provider 抽象、请求与响应模型、错误码。

# Provider 抽象

核心接口是 [Provider]，包含 Completion / HealthCheck / Name。
辩论引擎中的 Optimist、Skeptic 与 Grounding Validator 都通过该接口调用
模型服务，具体服务商（Gemini、DeepSeek 等）位于 providers 子包。

# 子包

  - providers：服务商适配（gemini、deepseek、openaicompat）与 HTTP 错误映射
  - retry：固定/指数退避重试
  - ratelimit：按 Provider 的最小调用间隔控制
  - tokenizer：Prompt Token 计数
*/
package llm
