package tracing // OpenTelemetry span的统一错误记录与属性截断

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorType 定义错误类型，便于分类和过滤
type ErrorType string

const (
	// ErrorTypeDB 数据库错误
	ErrorTypeDB ErrorType = "db"
	// ErrorTypeRedis Redis错误
	ErrorTypeRedis ErrorType = "redis"
	// ErrorTypeEmbedding 向量服务错误
	ErrorTypeEmbedding ErrorType = "embedding"
	// ErrorTypeValidation 验证错误
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeTimeout 超时错误
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeInternal 内部错误
	ErrorTypeInternal ErrorType = "internal"
)

// 属性截断上限。候选人提法与上下文可能很长，span属性只留前缀
const (
	// DefaultMaxLength 默认最大属性长度
	DefaultMaxLength = 200

	// MaxMentionLength 技能提法最大长度
	MaxMentionLength = 100

	// MaxContextLength 角色上下文最大长度
	MaxContextLength = 150
)

// RecordError 记录错误，添加统一的错误类型和详情
func RecordError(span trace.Span, err error, errorType ErrorType) {
	if span == nil || err == nil {
		return
	}

	span.RecordError(err)
	span.SetAttributes(
		attribute.String("error.type", string(errorType)),
		attribute.String("error.message", err.Error()),
	)
	span.SetStatus(codes.Error, err.Error())
}

// RecordErrorWithInfo 记录错误并附加额外属性
func RecordErrorWithInfo(span trace.Span, err error, errorType ErrorType, attributes ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}

	RecordError(span, err, errorType)
	if len(attributes) > 0 {
		span.SetAttributes(attributes...)
	}
}

// Truncate 截断超长文本，保留前缀并标记省略
func Truncate(value string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	if len(value) <= maxLength {
		return value
	}
	return value[:maxLength] + "...(truncated)"
}

// TruncatedString 生成截断后的span属性
func TruncatedString(key, value string, maxLength int) attribute.KeyValue {
	return attribute.String(key, Truncate(value, maxLength))
}

// SanitizeKey 规整属性key: 小写并把空格折叠成下划线
func SanitizeKey(key string) string {
	key = strings.TrimSpace(strings.ToLower(key))
	return strings.ReplaceAll(key, " ", "_")
}
