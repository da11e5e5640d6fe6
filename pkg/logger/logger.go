// 日志输出：终端带颜色，管道或文件里输出 json
package logger

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jwalton/gchalk"
	"github.com/jwalton/go-supportscolor"
)

var _ log.Logger = (*stdColorLogger)(nil)

// 这些 key 的值只输出掩码，dsn 里带数据库密码
var redactedKeys = map[string]struct{}{
	"dsn":           {},
	"token":         {},
	"jwt_secret":    {},
	"password":      {},
	"authorization": {},
}

const redacted = "***"

type levelStyle struct {
	title func(...string) string
	body  func(...string) string
}

var levelStyles = map[log.Level]levelStyle{
	log.LevelDebug: {gchalk.Green, gchalk.Green},
	log.LevelInfo:  {gchalk.Blue, gchalk.Blue},
	log.LevelWarn:  {gchalk.Yellow, gchalk.Yellow},
	log.LevelError: {gchalk.BgBrightRed, gchalk.BgBrightRed},
	log.LevelFatal: {gchalk.BgBrightRed, gchalk.BgBrightRed},
}

// stdColorLogger 可以被多个 goroutine 同时使用
type stdColorLogger struct {
	w     io.Writer
	debug bool
	skipN bool
	color bool
	mu    sync.Mutex
	pool  *sync.Pool
}

// NewStdColorLogger 创建 logger；skipNullValue 为 true 时空值字段不输出
func NewStdColorLogger(w io.Writer, skipNullValue, debug bool) log.Logger {
	return &stdColorLogger{
		w:     w,
		debug: debug,
		skipN: skipNullValue,
		color: wantColor(w),
		pool: &sync.Pool{
			New: func() any {
				return new(bytes.Buffer)
			},
		},
	}
}

// 单元测试下始终走文本格式，便于断言
func wantColor(w io.Writer) bool {
	if flag.Lookup("test.v") != nil {
		return true
	}
	f, ok := w.(*os.File)
	return ok && supportscolor.SupportsColor(f.Fd()).Level != gchalk.LevelNone
}

func (l *stdColorLogger) Log(level log.Level, keyvals ...any) error {
	if level == log.LevelDebug && !l.debug {
		return nil
	}
	if l.w == io.Discard || len(keyvals) == 0 {
		return nil
	}
	if len(keyvals)%2 == 1 {
		keyvals = append(keyvals, "KEYVALS UNPAIRED")
	}

	buf := l.pool.Get().(*bytes.Buffer)
	buf.Reset()
	defer l.pool.Put(buf)

	if l.color {
		l.writeText(buf, level, keyvals)
	} else if err := writeJSON(buf, level, keyvals); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.w.Write(buf.Bytes())
	return err
}

func (l *stdColorLogger) writeText(buf *bytes.Buffer, level log.Level, keyvals []any) {
	style, ok := levelStyles[level]
	if !ok {
		style = levelStyle{gchalk.Gray, gchalk.Gray}
	}
	buf.WriteString(style.body(style.title(level.String())))

	for i := 0; i < len(keyvals); i += 2 {
		k := fmt.Sprint(keyvals[i])
		v := fmt.Sprint(redact(k, keyvals[i+1]))
		if l.skipN && v == "" {
			continue
		}
		// caller 前加空格，编辑器里可以点击跳转
		if l.debug && k == "caller" {
			v = " " + v
		}
		_, _ = fmt.Fprintf(buf, " %s%s%s", gchalk.Gray(k), gchalk.Gray("="), v)
	}
	buf.WriteByte('\n')
}

func writeJSON(buf *bytes.Buffer, level log.Level, keyvals []any) error {
	param := make(map[string]any, len(keyvals)/2+1)
	param["level"] = level.String()
	for i := 0; i < len(keyvals); i += 2 {
		k := fmt.Sprint(keyvals[i])
		param[k] = redact(k, keyvals[i+1])
	}
	// Encoder 自带换行
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return enc.Encode(param)
}

func redact(key string, v any) any {
	if _, ok := redactedKeys[strings.ToLower(key)]; ok {
		if s := fmt.Sprint(v); s != "" {
			return redacted
		}
	}
	return v
}

func (l *stdColorLogger) Close() error {
	return nil
}
