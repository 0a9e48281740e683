// Package ctxkeys 定义在请求 context 中传递的键, 供中间件与 handler 共享.
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	principalKey contextKey = "principal"
)

// WithRequestID 设置 RequestID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID 获取 RequestID
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithPrincipal 设置已认证的调用方 (API key 指纹或 JWT subject)
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// Principal 获取已认证的调用方
func Principal(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(principalKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
