package ctxkeys

import (
	"context"

	"go.uber.org/zap"
)

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	passIDKey  contextKey = "pass_id"
)

// WithTraceID 设置 TraceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID 获取 TraceID
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(traceIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithPassID 设置当前爬取轮次 ID
func WithPassID(ctx context.Context, passID string) context.Context {
	return context.WithValue(ctx, passIDKey, passID)
}

// PassID 获取当前爬取轮次 ID
func PassID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(passIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Fields 返回 context 中可用于日志关联的字段
func Fields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if v, ok := PassID(ctx); ok {
		fields = append(fields, zap.String("pass_id", v))
	}
	if v, ok := TraceID(ctx); ok {
		fields = append(fields, zap.String("trace_id", v))
	}
	return fields
}
