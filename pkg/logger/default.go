package logger

import (
	"context"
	"os"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
)

type operatorIDKey struct{}

// NewDefaultLogger 是服务的根 logger，每条记录带服务信息、trace 和操作员
func NewDefaultLogger(id, name, version string, debug bool) log.Logger {
	return log.With(NewStdColorLogger(os.Stdout, true, debug),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.id", id,
		"service.name", name,
		"service.version", version,
		"trace.id", tracing.TraceID(),
		"span.id", tracing.SpanID(),
		"operator.id", OperatorID(),
	)
}

// OperatorID 自动输出发起请求的操作员，由鉴权中间件写入 ctx
func OperatorID() log.Valuer {
	return func(ctx context.Context) any {
		if ctx == nil {
			return ""
		}
		v, _ := ctx.Value(operatorIDKey{}).(string)
		return v
	}
}

func WithOperatorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operatorIDKey{}, id)
}
