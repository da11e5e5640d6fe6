package biz

import (
	"context"
	"strconv"
	"strings"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusDeleted  Status = "deleted"
)

// Known 只用于写入校验；读出来的未知状态原样透传。
func (s Status) Known() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusDeleted:
		return true
	}
	return false
}

// members 表里核心逻辑依赖的列
const (
	FieldID             = "id"
	FieldUsedInviteCode = "used_invite_code"
	FieldStatus         = "status"
	FieldSelected       = "selected"
	FieldCreatedAt      = "created_at"
	FieldUpdatedAt      = "updated_at"
	FieldName           = "name"
	FieldEmail          = "email"
	FieldPhone          = "phone"
)

// Member 是一行会员记录。Attrs 保存整行原始数据（含未知列），其余字段是从中解析出的核心属性。
type Member struct {
	ID             string
	UsedInviteCode string // 空串表示没有推荐人
	Status         Status
	Selected       bool
	CreatedAt      time.Time
	Attrs          map[string]any
}

// NewMember 从一行数据构造 Member，核心列被规整成统一类型后写回 Attrs。
func NewMember(row map[string]any) *Member {
	attrs := make(map[string]any, len(row))
	for k, v := range row {
		attrs[k] = v
	}

	m := &Member{Attrs: attrs}
	m.ID, _ = ValueString(row[FieldID])
	m.UsedInviteCode, _ = ValueString(row[FieldUsedInviteCode])
	if s, ok := ValueString(row[FieldStatus]); ok {
		m.Status = Status(s)
	}
	m.Selected = valueBool(row[FieldSelected])
	m.CreatedAt = valueTime(row[FieldCreatedAt])

	attrs[FieldID] = m.ID
	if m.UsedInviteCode == "" {
		attrs[FieldUsedInviteCode] = nil
	} else {
		attrs[FieldUsedInviteCode] = m.UsedInviteCode
	}
	if _, ok := row[FieldSelected]; ok {
		attrs[FieldSelected] = m.Selected
	}
	if !m.CreatedAt.IsZero() {
		attrs[FieldCreatedAt] = m.CreatedAt
	}
	if v, ok := row[FieldUpdatedAt]; ok && v != nil {
		if t := valueTime(v); !t.IsZero() {
			attrs[FieldUpdatedAt] = t
		}
	}
	return m
}

type OrderBy struct {
	Field string
	Desc  bool
}

// ListQuery 是管理后台列表下发给存储层的查询，分页/排序已在 biz 层规整过。
type ListQuery struct {
	Search       string
	SearchFields []string
	Statuses     []Status
	Selected     *bool
	Sort         []OrderBy
	Offset       int
	Limit        int
}

// Mutation 一次只改一个目标：状态或 selected 标记。
type Mutation struct {
	Status   *Status
	Selected *bool
}

// MemberStore 是核心对会员表的全部依赖。
//
// 查不到记录时 FindByID 返回 ErrNotFound，其余错误原样返回，由 usecase 包装成 ErrStore。
type MemberStore interface {
	FindByID(ctx context.Context, id string) (*Member, error)
	FindEqual(ctx context.Context, field string, value any, order []OrderBy) ([]*Member, error)
	FindIn(ctx context.Context, field string, values []any, order []OrderBy) ([]*Member, error)
	List(ctx context.Context, q ListQuery) ([]*Member, int, error)
	// UpdateIn 在一个事务里更新并回读，返回集合中实际存在的行
	UpdateIn(ctx context.Context, ids []string, m Mutation) ([]*Member, error)
}

func valueBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case int:
		return x != 0
	case float64:
		return x != 0
	case []byte:
		return parseBoolString(string(x))
	case string:
		return parseBoolString(x)
	}
	return false
}

func parseBoolString(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

func valueTime(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x
	case *time.Time:
		if x != nil {
			return *x
		}
	case []byte:
		return parseTimeString(string(x))
	case string:
		return parseTimeString(x)
	}
	return time.Time{}
}

func parseTimeString(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
