package server

import (
	"referralhub/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	"github.com/go-kratos/kratos/v2/middleware/ratelimit"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
	kgrpc "github.com/go-kratos/kratos/v2/transport/grpc"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
)

// 只有健康检查和反射，请求体很小
const grpcMaxRecvMsgSize = 64 << 10

// NewGRPCServer 只承载 kratos 自带的 grpc.health.v1 和 reflection，会员接口走 HTTP。
func NewGRPCServer(
	c *conf.Server,
	logger log.Logger,
	tracerProvider *trace.TracerProvider,
) *kgrpc.Server {
	opts := []kgrpc.ServerOption{
		kgrpc.Middleware(
			recovery.Recovery(),
			tracing.Server(tracing.WithTracerProvider(tracerProvider)),
			logging.Server(log.With(logger, "logger.name", "server.grpc")),
			ratelimit.Server(),
		),
		kgrpc.Options(grpc.MaxRecvMsgSize(grpcMaxRecvMsgSize)),
		kgrpc.Logger(logger),
	}
	if c != nil && c.Grpc != nil {
		opts = append(opts, grpcListenOptions(c.Grpc)...)
	}
	return kgrpc.NewServer(opts...)
}

func grpcListenOptions(c *conf.GRPCServer) []kgrpc.ServerOption {
	var opts []kgrpc.ServerOption
	if c.Network != "" {
		opts = append(opts, kgrpc.Network(c.Network))
	}
	if c.Addr != "" {
		opts = append(opts, kgrpc.Address(c.Addr))
	}
	if c.Timeout != nil {
		opts = append(opts, kgrpc.Timeout(c.Timeout.AsDuration()))
	}
	return opts
}
