/*
# 概述

包 gemini 直接对接 Gemini REST API（generativelanguage.googleapis.com），
为辩论中的乐观方提供 llm.Provider 实现，不经过 openaicompat 兼容层。

# 核心结构体

  - GeminiProvider: 持有 http.Client 与 GeminiConfig，使用 x-goog-api-key 认证
  - geminiRequest / geminiResponse: Gemini 原生请求/响应结构

# 支持能力

  - Completion（/v1beta/models/{model}:generateContent）
  - HealthCheck（/v1beta/models）
  - system 消息转为 systemInstruction，assistant 角色映射为 model
*/
package gemini
