// internal/data/data.go
package data

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"referralhub/internal/biz"
	"referralhub/internal/conf"
	entLogger "referralhub/pkg/logger"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/XSAM/otelsql"
	"github.com/go-kratos/kratos/v2/log"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/wire"
	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite"
)

// ProviderSet 是 data 层对外暴露的依赖注入集合。
var ProviderSet = wire.NewSet(
	NewData,

	// member store
	NewMemberRepo,
	wire.Bind(new(biz.MemberStore), new(*memberRepo)),
	NewCodeFields,

	// batch notify
	NewBatchNotifier,
	wire.Bind(new(biz.BatchNotifier), new(*batchNotifier)),
)

const (
	defaultQueryTimeout = 5 * time.Second
	defaultReadyTimeout = 30 * time.Second
	readyPingInterval   = time.Second
)

// Data 聚合外部资源：数据库连接和 ent 驱动。
type Data struct {
	log          *log.Helper
	drv          dialect.Driver
	sqldb        *sql.DB
	dialect      string
	queryTimeout time.Duration
	conf         *conf.Data
}

// SQLDB 返回底层 DB，dbcheck 用它看连接池状态
func (d *Data) SQLDB() *sql.DB {
	return d.sqldb
}

// Dialect 返回 ent 方言名（mysql / sqlite3）
func (d *Data) Dialect() string {
	return d.dialect
}

// Ready 供 /readyz 使用
func (d *Data) Ready(ctx context.Context) error {
	if d == nil || d.sqldb == nil {
		return errors.New("database not initialized")
	}
	return d.sqldb.PingContext(ctx)
}

// withTimeout 给单条 SQL 加上 query_timeout，和调用方 ctx 取较早的截止时间
func (d *Data) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.queryTimeout)
}

// NewCodeFields 从配置读取邀请码别名列
func NewCodeFields(c *conf.Data) biz.CodeFields {
	if c == nil || c.Referral == nil {
		return biz.NewCodeFields(nil)
	}
	return biz.NewCodeFields(c.Referral.CodeFields)
}

// driverFor 把配置里的 driver 映射成 database/sql 驱动名和 ent 方言
func driverFor(name string) (driverName, dialectName string, err error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mysql":
		return "mysql", dialect.MySQL, nil
	case "sqlite", "sqlite3":
		return "sqlite", dialect.SQLite, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", name)
	}
}

// sqliteDSN 确保打开外键约束，ent 的 sqlite 迁移依赖它
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// waitForDBReady 启动时数据库可能还没起来（docker compose），按固定间隔重试直到 ctx 超时
func waitForDBReady(ctx context.Context, p pinger, interval time.Duration, l *log.Helper) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = p.PingContext(ctx)
		if lastErr == nil {
			if attempt > 1 {
				l.Infof("database ready after %d attempts", attempt)
			}
			return nil
		}
		l.Warnf("database ping failed attempt=%d err=%v", attempt, lastErr)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("database not ready before timeout: %w", lastErr)
		case <-timer.C:
		}
	}
}

// NewData 由 wire 调用，用来统一管理资源和 cleanup。
func NewData(c *conf.Data, logger log.Logger) (*Data, func(), error) {
	l := log.NewHelper(log.With(logger, "logger.name", "data"))

	if c == nil || c.Database == nil || c.Database.Dsn == "" {
		return nil, nil, errors.New("data.database.dsn is required")
	}
	driverName, dialectName, err := driverFor(c.Database.Driver)
	if err != nil {
		return nil, nil, err
	}
	dsn := c.Database.Dsn
	if dialectName == dialect.SQLite {
		dsn = sqliteDSN(dsn)
	}

	l.Infof("init %s(otelsql) start...", driverName)
	db, err := otelsql.Open(
		driverName,
		dsn,
		otelsql.WithSpanOptions(otelsql.SpanOptions{
			OmitConnResetSession: true,
			OmitConnPrepare:      true,
			OmitConnQuery:        false,
			OmitRows:             true,
			OmitConnectorConnect: true,
		}),
		otelsql.WithAttributesGetter(func(
			ctx context.Context,
			method otelsql.Method,
			query string,
			args []driver.NamedValue,
		) []attribute.KeyValue {
			attrs := make([]attribute.KeyValue, 0, 1+len(args))
			attrs = append(attrs, attribute.String("db.statement", query))
			for _, a := range args {
				key := fmt.Sprintf("db.sql.arg.%d", a.Ordinal)
				if a.Name != "" {
					key = "db.sql.arg." + a.Name
				}
				attrs = append(attrs, attribute.String(key, fmt.Sprint(a.Value)))
			}
			return attrs
		}),
	)
	if err != nil {
		l.Errorf("failed to open %s connection: %v", driverName, err)
		return nil, nil, err
	}
	if dialectName == dialect.SQLite {
		// sqlite 单写者，避免并发写时 SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	readyTimeout := c.Database.ReadyTimeout.AsDuration()
	if readyTimeout <= 0 {
		readyTimeout = defaultReadyTimeout
	}
	readyCtx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	err = waitForDBReady(readyCtx, db, readyPingInterval, l)
	cancel()
	if err != nil {
		_ = db.Close()
		l.Errorf("%s ping failed: %v", driverName, err)
		return nil, nil, err
	}
	l.Infof("init %s(otelsql) done", driverName)

	var drv dialect.Driver = entsql.OpenDB(dialectName, db)

	if c.Database.AutoMigrate {
		if err := migrate(context.Background(), drv); err != nil {
			_ = db.Close()
			l.Errorf("migrate failed: %v", err)
			return nil, nil, err
		}
		l.Info("migrate members done")
	}

	if c.Database.Debug {
		drv = dialect.Debug(drv, entLogger.NewEntLogger(logger))
	}

	queryTimeout := c.Database.QueryTimeout.AsDuration()
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}

	data := &Data{
		log:          l,
		drv:          drv,
		sqldb:        db,
		dialect:      dialectName,
		queryTimeout: queryTimeout,
		conf:         c,
	}

	if err := InitDemoMembersIfNeeded(context.Background(), data, c, l); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	cleanup := func() {
		l.Info("closing the data resources")
		if err := drv.Close(); err != nil {
			l.Errorf("close database: %v", err)
		}
	}

	return data, cleanup, nil
}
