package logger

import (
	"fmt"
	"strings"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jwalton/gchalk"
)

// 批量修改时 IN 列表可能有几百个参数，日志里只保留开头
const maxEntArgsLen = 512

// NewEntLogger 把 ent 的 debug 输出（driver.Query: query=... args=[...]）拆成结构化字段
func NewEntLogger(l log.Logger) func(...any) {
	return func(a ...any) {
		op, query, args, ok := parseEntLine(fmt.Sprint(a...))
		if !ok {
			_ = l.Log(log.LevelDebug, "msg", fmt.Sprint(a...))
			return
		}
		_ = l.Log(
			log.LevelDebug,
			"msg", op,
			"query", gchalk.BgBrightBlack(query), // 高亮灰色背景
			"args", truncateArgs(args),
		)
	}
}

// parseEntLine 解析 "<op>: query=<sql> args=<args>"，事务里的 op 形如 Tx(uuid).Exec
func parseEntLine(s string) (op, query, args string, ok bool) {
	op, rest, ok := strings.Cut(s, ": ")
	if !ok {
		return "", "", "", false
	}
	rest, ok = strings.CutPrefix(rest, "query=")
	if !ok {
		return "", "", "", false
	}
	// sql 里也可能出现 " args="，取最后一个
	i := strings.LastIndex(rest, " args=")
	if i < 0 {
		return "", "", "", false
	}
	query, args = rest[:i], rest[i+len(" args="):]
	if query == "" {
		return "", "", "", false
	}
	return op, query, args, true
}

func truncateArgs(args string) string {
	if len(args) <= maxEntArgsLen {
		return args
	}
	return fmt.Sprintf("%s...(%d bytes)", args[:maxEntArgsLen], len(args))
}
