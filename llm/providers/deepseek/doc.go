/*
包 deepseek 提供 DeepSeek 模型的 Provider 适配实现。DeepSeek 使用
OpenAI 兼容的 API 格式，本包嵌入 openaicompat.Provider，仅定制差异部分。

# 定制行为

  - 默认 BaseURL: https://api.deepseek.com
  - 默认兜底模型: deepseek-chat
  - Endpoint: /chat/completions，健康检查: /models
  - Metadata["reasoning_mode"] 为 thinking 且未指定模型时切换到 deepseek-reasoner
*/
package deepseek
