// Package conf 定义服务的启动配置。
//
// 配置由 kratos config 从 configs/<env>/config.yaml 读取，再用环境变量覆盖敏感项
// （DSN、JWT 秘钥、telegram token），见 ApplyEnv。
package conf

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Bootstrap struct {
	Server *Server `json:"server"`
	Data   *Data   `json:"data"`
	Log    *Log    `json:"log"`
	Trace  *Trace  `json:"trace"`
}

type Server struct {
	Http *HTTPServer `json:"http"`
	Grpc *GRPCServer `json:"grpc"`
}

type HTTPServer struct {
	Network string    `json:"network"`
	Addr    string    `json:"addr" env:"REFERRALHUB_HTTP_ADDR"`
	Timeout *Duration `json:"timeout"`
}

type GRPCServer struct {
	Network string    `json:"network"`
	Addr    string    `json:"addr" env:"REFERRALHUB_GRPC_ADDR"`
	Timeout *Duration `json:"timeout"`
}

type Data struct {
	Database *Database `json:"database"`
	Auth     *Auth     `json:"auth"`
	Referral *Referral `json:"referral"`
	Telegram *Telegram `json:"telegram"`
	Seed     *Seed     `json:"seed"`
}

type Database struct {
	// mysql（默认）或 sqlite
	Driver      string `json:"driver" env:"REFERRALHUB_DATABASE_DRIVER"`
	Dsn         string `json:"dsn" env:"REFERRALHUB_DATABASE_DSN"`
	Debug       bool   `json:"debug"`
	AutoMigrate bool   `json:"auto_migrate"`
	// 单条 SQL 的超时，叠加在请求 ctx 之上
	QueryTimeout *Duration `json:"query_timeout"`
	// 启动时等待数据库就绪的最长时间
	ReadyTimeout *Duration `json:"ready_timeout"`
}

type Auth struct {
	JwtSecret string `json:"jwt_secret" env:"REFERRALHUB_JWT_SECRET"`
}

type Referral struct {
	// “自己的邀请码”历史上用过的列名，按优先级排列
	CodeFields []string `json:"code_fields"`
}

type Telegram struct {
	Token  string `json:"token" env:"TELEGRAM_APITOKEN"`
	ChatId int64  `json:"chat_id" env:"TELEGRAM_CHAT_ID"`
}

type Seed struct {
	Demo bool `json:"demo" env:"REFERRALHUB_SEED_DEMO"`
}

type Log struct {
	Debug bool `json:"debug" env:"REFERRALHUB_LOG_DEBUG"`
}

type Trace struct {
	Jaeger *Jaeger `json:"jaeger"`
}

type Jaeger struct {
	Endpoint  string `json:"endpoint" env:"OTLP_ENDPOINT"`
	TraceName string `json:"trace_name"`
}

// ApplyEnv 用环境变量覆盖已加载的配置。未设置的变量不会改动原值。
func ApplyEnv(bc *Bootstrap) error {
	if bc.Server == nil {
		bc.Server = &Server{}
	}
	if bc.Server.Http == nil {
		bc.Server.Http = &HTTPServer{}
	}
	if bc.Server.Grpc == nil {
		bc.Server.Grpc = &GRPCServer{}
	}
	if bc.Data == nil {
		bc.Data = &Data{}
	}
	if bc.Data.Database == nil {
		bc.Data.Database = &Database{}
	}
	if bc.Data.Auth == nil {
		bc.Data.Auth = &Auth{}
	}
	if bc.Data.Telegram == nil {
		bc.Data.Telegram = &Telegram{}
	}
	if bc.Data.Seed == nil {
		bc.Data.Seed = &Seed{}
	}
	if bc.Log == nil {
		bc.Log = &Log{}
	}
	if bc.Trace == nil {
		bc.Trace = &Trace{}
	}
	if bc.Trace.Jaeger == nil {
		bc.Trace.Jaeger = &Jaeger{}
	}
	if err := env.Parse(bc); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Duration 兼容 yaml 里的 "5s" 写法；纯数字按秒处理。
type Duration struct {
	time.Duration
}

func NewDuration(d time.Duration) *Duration {
	return &Duration{Duration: d}
}

// AsDuration 对 nil 安全，用法与 durationpb 一致。
func (d *Duration) AsDuration() time.Duration {
	if d == nil {
		return 0
	}
	return d.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		d.Duration = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		return d.UnmarshalText([]byte(str))
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %s: %w", s, err)
	}
	d.Duration = time.Duration(secs * float64(time.Second))
	return nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		d.Duration = 0
		return nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		d.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}
