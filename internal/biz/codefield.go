package biz

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultCodeFields 是“自己的邀请码”在 members 表里出现过的列名，第一个是现行列，其余为历史遗留。
var DefaultCodeFields = CodeFields{
	"own_invite_code",
	"my_invite_code",
	"referral_code",
	"invite_no",
}

// CodeFields 按优先级探测一行数据里的邀请码列。
type CodeFields []string

// NewCodeFields 去掉空白和重复项；结果为空时退回 DefaultCodeFields。
func NewCodeFields(fields []string) CodeFields {
	out := make(CodeFields, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	if len(out) == 0 {
		return append(CodeFields(nil), DefaultCodeFields...)
	}
	return out
}

// Resolve 返回第一个存在且非空的别名列的值。都没有时 ok=false。
func (f CodeFields) Resolve(row map[string]any) (code string, ok bool) {
	for _, key := range f {
		v, present := row[key]
		if !present {
			continue
		}
		if s, ok := ValueString(v); ok {
			return s, true
		}
	}
	return "", false
}

// ValueString 把字符串或数字形式的值统一成字符串。nil、空白串、NaN 视为不存在。
func ValueString(v any) (string, bool) {
	var s string
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		s = x
	case *string:
		if x == nil {
			return "", false
		}
		s = *x
	case []byte:
		s = string(x)
	case int:
		s = strconv.Itoa(x)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		s = fmt.Sprintf("%d", x)
	case float32:
		return floatString(float64(x))
	case float64:
		return floatString(x)
	case json.Number:
		s = x.String()
	case fmt.Stringer:
		s = x.String()
	default:
		s = fmt.Sprint(x)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}

func floatString(f float64) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}
