package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"referralhub/internal/biz"
	"referralhub/internal/conf"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

const inviteCodeRetries = 3

type demoMember struct {
	key      string
	parent   string // 推荐人的 key
	name     string
	status   biz.Status
	codeCol  string // 空表示没有自己的邀请码
	inviteNo int64
	minutes  int
}

// 本地开发用的一棵推荐树：root -> 3 个一级 -> 若干二级，顺带覆盖历史别名列
var demoForest = []demoMember{
	{key: "root", name: "Demo Root", status: biz.StatusApproved, codeCol: "own_invite_code", minutes: 0},
	{key: "l1a", parent: "root", name: "Alice Level1", status: biz.StatusApproved, codeCol: "own_invite_code", minutes: 10},
	{key: "l1b", parent: "root", name: "Bob Level1", status: biz.StatusPending, codeCol: "referral_code", minutes: 20},
	{key: "l1c", parent: "root", name: "Carol Level1", status: biz.StatusPending, minutes: 30},
	{key: "l2a", parent: "l1a", name: "Dan Level2", status: biz.StatusPending, codeCol: "invite_no", inviteNo: 880001, minutes: 40},
	{key: "l2b", parent: "l1a", name: "Eve Level2", status: biz.StatusRejected, minutes: 50},
	{key: "l2c", parent: "l1b", name: "Frank Level2", status: biz.StatusPending, minutes: 60},
	{key: "l3a", parent: "l2a", name: "Grace Level3", status: biz.StatusPending, minutes: 70},
}

// InitDemoMembersIfNeeded 在 seed.demo 打开且表为空时写入演示数据
func InitDemoMembersIfNeeded(ctx context.Context, d *Data, cfg *conf.Data, l *log.Helper) error {
	if cfg == nil || cfg.Seed == nil || !cfg.Seed.Demo {
		return nil
	}

	b := entsql.Dialect(d.dialect)
	countSQL, countArgs := b.Select(entsql.Count("*")).From(b.Table(membersTable)).Query()
	rows := &entsql.Rows{}
	if err := d.drv.Query(ctx, countSQL, countArgs, rows); err != nil {
		return fmt.Errorf("seed count members: %w", err)
	}
	n, err := entsql.ScanInt(rows)
	_ = rows.Close()
	if err != nil {
		return fmt.Errorf("seed count members: %w", err)
	}
	if n > 0 {
		l.Infof("seed skipped, members=%d", n)
		return nil
	}

	base := time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Second)
	codes := map[string]string{}
	for _, m := range demoForest {
		code, err := insertDemoMember(ctx, d, m, codes[m.parent], base)
		if err != nil {
			return fmt.Errorf("seed %s: %w", m.key, err)
		}
		if code != "" {
			codes[m.key] = code
		}
	}
	l.Infof("seed demo members done count=%d", len(demoForest))
	return nil
}

func insertDemoMember(ctx context.Context, d *Data, m demoMember, usedCode string, base time.Time) (string, error) {
	for attempt := 0; attempt < inviteCodeRetries; attempt++ {
		code := ""
		cols := []string{biz.FieldID, biz.FieldStatus, biz.FieldSelected, biz.FieldName, biz.FieldEmail, biz.FieldCreatedAt, biz.FieldUpdatedAt}
		at := base.Add(time.Duration(m.minutes) * time.Minute)
		vals := []any{uuid.NewString(), string(m.status), false, m.name, demoEmail(m.name), at, at}

		switch m.codeCol {
		case "":
		case "invite_no":
			code = fmt.Sprint(m.inviteNo)
			cols = append(cols, "invite_no")
			vals = append(vals, m.inviteNo)
		default:
			code = randomInviteCode()
			cols = append(cols, m.codeCol)
			vals = append(vals, code)
		}
		if usedCode != "" {
			cols = append(cols, biz.FieldUsedInviteCode)
			vals = append(vals, usedCode)
		}

		query, args := entsql.Dialect(d.dialect).
			Insert(membersTable).
			Columns(cols...).
			Values(vals...).
			Query()
		if err := d.drv.Exec(ctx, query, args, nil); err != nil {
			if isDuplicateInviteCodeConstraint(err) && m.codeCol != "invite_no" {
				continue
			}
			return "", err
		}
		return code, nil
	}
	return "", fmt.Errorf("invite code collision after %d attempts", inviteCodeRetries)
}

// randomInviteCode 8 位大写十六进制，撞码由唯一索引兜底重试
func randomInviteCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func demoEmail(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com"
}
