// internal/server/http.go
package server

import (
	"context"
	stdhttp "net/http"
	"time"

	"referralhub/internal/conf"
	"referralhub/internal/data"
	"referralhub/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	"github.com/go-kratos/kratos/v2/middleware/ratelimit"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
	httpx "github.com/go-kratos/kratos/v2/transport/http"
	"go.opentelemetry.io/otel/sdk/trace"
)

// readyz 探测数据库的超时
const readyProbeTimeout = 2 * time.Second

// readiness 由 *data.Data 实现
type readiness interface {
	Ready(ctx context.Context) error
}

func NewHTTPServer(
	c *conf.Server,
	dc *conf.Data,
	logger log.Logger,
	memberSvc *service.MemberService,
	tp *trace.TracerProvider,
	d *data.Data,
) *httpx.Server {
	var opts = []httpx.ServerOption{
		httpx.Middleware(
			recovery.Recovery(),
			tracing.Server(tracing.WithTracerProvider(tp)),
			logging.Server(log.With(logger, "logger.name", "server.http")),
			// 默认 bbr limiter
			ratelimit.Server(),
			// 从请求头取 JWT，解析成 AuthClaims 放进 ctx
			AuthClaimsMiddleware(dc, logger),
		),
		httpx.ErrorEncoder(memberErrorEncoder),
	}

	if c != nil && c.Http != nil {
		if c.Http.Network != "" {
			opts = append(opts, httpx.Network(c.Http.Network))
		}
		if c.Http.Addr != "" {
			opts = append(opts, httpx.Address(c.Http.Addr))
		}
		if c.Http.Timeout != nil {
			opts = append(opts, httpx.Timeout(c.Http.Timeout.AsDuration()))
		}
	}

	opts = append(opts, httpx.Logger(logger))

	srv := httpx.NewServer(opts...)

	registerMemberHTTPServer(srv, memberSvc)
	registerProbes(srv, d)

	return srv
}

type handleRegistrar interface {
	Handle(path string, h stdhttp.Handler)
}

func registerProbes(srv handleRegistrar, ready readiness) {
	// /ping：最简单的活跃检测
	srv.Handle("/ping", stdhttp.HandlerFunc(
		func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			w.WriteHeader(stdhttp.StatusOK)
			_, _ = w.Write([]byte("pong"))
		},
	))

	// /healthz：进程存活
	srv.Handle("/healthz", stdhttp.HandlerFunc(
		func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			w.WriteHeader(stdhttp.StatusOK)
			_, _ = w.Write([]byte("ok"))
		}),
	)

	// /readyz：会员库能连通才算就绪
	srv.Handle("/readyz", stdhttp.HandlerFunc(
		func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), readyProbeTimeout)
			defer cancel()

			if ready != nil {
				if err := ready.Ready(ctx); err != nil {
					w.WriteHeader(stdhttp.StatusServiceUnavailable)
					_, _ = w.Write([]byte("database not ready"))
					return
				}
			}

			w.WriteHeader(stdhttp.StatusOK)
			_, _ = w.Write([]byte("ready"))
		}),
	)
}
