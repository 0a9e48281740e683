// Package api 定义 Oracle HTTP API 的请求与响应结构.
//
// # API Overview
//
// Oracle 提供以下 RESTful 端点:
//   - POST /api/v1/debates        异步启动辩论, 返回 202 与 session_id
//   - POST /api/v1/debates:run    同步执行辩论, 返回完整 DebateResult
//   - GET  /api/v1/debates/{id}   查询会话状态与结果 (内存或归档)
//   - GET  /api/v1/debates/{id}/stream  websocket, 逐条推送 DebateTurn
//   - GET  /health, /healthz, /ready, /version
//
// # Authentication
//
// auth.enabled 时 /api/v1 下的端点需要以下任一凭据:
//
//	X-API-Key: your-api-key
//	Authorization: Bearer <HS256 JWT>
//
// 所有 JSON 响应都包裹在 handlers.Response 信封中:
//
//	{"success": true, "data": {...}, "timestamp": "...", "request_id": "..."}
package api
