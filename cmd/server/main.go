// cmd/server/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"referralhub/internal/conf"
	"referralhub/pkg/logger"
	"referralhub/pkg/threading"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/grpc"
	"github.com/go-kratos/kratos/v2/transport/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	"go.uber.org/automaxprocs/maxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	Name      string = "referralhub"
	TraceName string = "referralhub.service"
	Version   string

	flagconf string

	id, _ = os.Hostname()
)

func init() {
	// 自动设置 GOMAXPROCS，关闭它自带的日志
	_, _ = maxprocs.Set(maxprocs.Logger(nil))

	// 默认给空，真正用的时候再自动探测
	flag.StringVar(&flagconf, "conf", "", "config path, eg: -conf ./configs/dev/config.yaml")
}

func newApp(logger log.Logger, gs *grpc.Server, hs *http.Server) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			gs,
			hs,
		),
	)
}

// 兼容在仓库根目录和 cmd/server 下直接 go run
func resolveConfPath(flagVal string) string {
	if flagVal != "" {
		return flagVal
	}

	candidates := []string{
		"./configs/dev/config.yaml",
		"../configs/dev/config.yaml",
		"../../configs/dev/config.yaml",
	}
	for _, p := range candidates {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return "./configs/dev/config.yaml"
}

// loadBootstrap 读配置文件，再用环境变量覆盖
func loadBootstrap(confPath string) (*conf.Bootstrap, error) {
	c := config.New(
		config.WithSource(
			file.NewSource(confPath),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		return nil, fmt.Errorf("load config failed: %w (conf=%s)", err, confPath)
	}

	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		return nil, fmt.Errorf("scan bootstrap config failed: %w", err)
	}
	if err := conf.ApplyEnv(&bc); err != nil {
		return nil, err
	}
	return &bc, nil
}

// 初始化 TracerProvider：优先远端 OTLP（异步 Batch），未配置或失败就用本地 provider
func initTracerProvider(traceName, traceEndpoint string, baseLogger log.Logger) *tracesdk.TracerProvider {
	helper := log.NewHelper(baseLogger)
	res := resource.NewSchemaless(semconv.ServiceNameKey.String(traceName))

	var tp *tracesdk.TracerProvider
	if traceEndpoint != "" {
		exp, err := otlptracehttp.New(
			context.Background(),
			otlptracehttp.WithEndpoint(traceEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			helper.Errorf("init otlp exporter failed: %v, fallback to local tracer", err)
		} else {
			helper.Infof("init tracer provider with endpoint %s", traceEndpoint)
			tp = tracesdk.NewTracerProvider(
				tracesdk.WithBatcher(exp),
				tracesdk.WithResource(res),
			)
		}
	}
	if tp == nil {
		helper.Info("trace endpoint empty or exporter failed, use local tracer")
		tp = tracesdk.NewTracerProvider(tracesdk.WithResource(res))
	}

	otel.SetTracerProvider(tp) // 设置全局tp
	return tp
}

func main() {
	flag.Parse()

	confPath := resolveConfPath(flagconf)
	fmt.Println("using conf path:", confPath)

	// ===== 1. 加载配置 =====
	bc, err := loadBootstrap(confPath)
	if err != nil {
		panic(err)
	}

	logger := logger.NewDefaultLogger(id, Name, Version, bc.Log.Debug)
	log.SetLogger(logger) // 设置全局日志

	traceName := TraceName
	if bc.Trace.Jaeger.TraceName != "" {
		traceName = bc.Trace.Jaeger.TraceName
	}

	// ===== 2. 初始化协程管理器（批量通知在这里跑） =====
	cleanupThreading := threading.Init()
	defer cleanupThreading()

	// ===== 3. 初始化 OpenTelemetry =====
	tp := initTracerProvider(traceName, bc.Trace.Jaeger.Endpoint, logger)
	defer func() {
		_ = tp.ForceFlush(context.Background())
		_ = tp.Shutdown(context.Background())
	}()

	// ===== 4. 组装应用 =====
	app, cleanup, err := wireApp(bc.Server, bc.Data, logger, tp)
	if err != nil {
		panic(fmt.Errorf("wireApp init failed: %w", err))
	}
	defer cleanup()

	// ===== 5. 启动应用 =====
	if err := app.Run(); err != nil {
		panic(fmt.Errorf("app run failed: %w", err))
	}
}
