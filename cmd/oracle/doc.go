/*
Command oracle 是辩论引擎的可执行入口。

# 子命令

  - serve: 启动 HTTP API（:http_port）与 Prometheus 指标服务（:metrics_port）
  - run: 本地执行辩论, 支持 --facts 单个文件或 --batch 目录并发执行
  - migrate: 归档数据库迁移, 子命令由 internal/migration.CLI 处理
  - version: 打印构建信息
  - health: 探测运行中服务的 /health 或 /ready

# 中间件链

Recovery → RequestID → OTelTracing → SecurityHeaders → RequestLogger →
MetricsMiddleware → CORS → RateLimiter → Auth。
Auth 接受 X-API-Key 或 HS256 签名的 Bearer JWT, 健康检查路径免认证。
*/
package main
