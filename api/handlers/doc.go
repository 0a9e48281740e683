/*
Package handlers 提供辩论服务 HTTP API 的请求处理器实现。

# 核心类型

  - DebateHandler: 辩论会话的创建、同步执行、查询与 WebSocket 发言流
  - SessionHub: 会话登记与发言扇出, 同时作为编排器的 TurnObserver
  - HealthHandler: 服务健康检查（/health, /healthz, /ready, /version）
  - Response: 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo: 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter: 包装 http.ResponseWriter 以捕获状态码, 支持 Hijack

# 主要能力

  - 并发上限：semaphore 非阻塞占位, 超限返回 429 RATE_LIMITED
  - 会话查询：内存优先, 过期后回退到归档存储
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 优雅关闭：Shutdown 等待运行中的会话, 超时后取消
*/
package handlers
