/*
包 middleware 提供 LLM 调用的中间件链机制，在请求发送到上游模型服务
之前和响应返回之后插入可组合的横切逻辑。

# 内置中间件

  - RecoveryMiddleware: panic 恢复为错误
  - LoggingMiddleware: zap 结构化请求日志
  - TracingMiddleware: OpenTelemetry span
  - MetricsMiddleware: 请求耗时、成功率与 token 统计
  - CacheMiddleware: 响应缓存（Redis 等）
  - RetryMiddleware: 固定间隔重试，耗尽后返回 GENERATION_TRANSPORT_ERROR
  - RateLimitMiddleware: 每次尝试前的 Provider 调用节流
  - TimeoutMiddleware: 单次调用超时

推荐顺序（外到内）：Recovery → Logging → Tracing → Metrics → Cache →
Retry → RateLimit → Timeout → Provider.Completion。
*/
package middleware
