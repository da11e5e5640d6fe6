package biz

import (
	"context"
	"errors"
	"strings"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// referralOrder：最新的下线在前，同一时间按 id 升序，保证重复调用顺序一致
var referralOrder = []OrderBy{
	{Field: FieldCreatedAt, Desc: true},
	{Field: FieldID},
}

// ReferralTree 是固定两层的推荐关系。Level2 是所有一级下线招来的人的并集，不按推荐人分组。
type ReferralTree struct {
	Member        *Member
	OwnInviteCode string // 空串表示该会员没有邀请码
	Level1        []*Member
	Level2        []*Member
}

type ReferralUsecase struct {
	store  MemberStore
	fields CodeFields
	log    *log.Helper
	tracer trace.Tracer
}

func NewReferralUsecase(store MemberStore, fields CodeFields, logger log.Logger, tp *tracesdk.TracerProvider) *ReferralUsecase {
	var tr trace.Tracer
	if tp != nil {
		tr = tp.Tracer("biz.referral")
	} else {
		tr = otel.Tracer("biz.referral")
	}
	if len(fields) == 0 {
		fields = DefaultCodeFields
	}
	return &ReferralUsecase{
		store:  store,
		fields: fields,
		log:    log.NewHelper(log.With(logger, "module", "biz.referral")),
		tracer: tr,
	}
}

// Resolve 解析会员的两层下线。
//
// 只做读操作；任何一次存储查询失败都会让整个调用失败，不返回半成品。
func (uc *ReferralUsecase) Resolve(ctx context.Context, memberID string) (tree *ReferralTree, err error) {
	memberID = strings.TrimSpace(memberID)

	ctx, span := uc.tracer.Start(ctx, "referral.resolve",
		trace.WithAttributes(attribute.String("member.id", memberID)),
	)
	defer span.End()

	l := uc.log.WithContext(ctx)

	if memberID == "" {
		err = invalidArgument("member id is required")
		span.SetStatus(codes.Error, "invalid argument")
		l.Warn("Resolve empty member id")
		return nil, err
	}

	l.Infof("Resolve start member_id=%s", memberID)

	root, err := uc.store.FindByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			span.SetStatus(codes.Error, "not found")
			l.Infof("Resolve member not found member_id=%s", memberID)
			return nil, notFound("member %s", memberID)
		}
		err = storeError("find member", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "store.FindByID failed")
		l.Errorf("Resolve find member failed member_id=%s err=%v", memberID, err)
		return nil, err
	}

	tree = &ReferralTree{
		Member: root,
		Level1: []*Member{},
		Level2: []*Member{},
	}

	selfCode, ok := uc.fields.Resolve(root.Attrs)
	if !ok {
		// 没有邀请码就不可能有下线
		span.SetStatus(codes.Ok, "OK")
		l.Infof("Resolve member has no invite code member_id=%s", memberID)
		return tree, nil
	}
	tree.OwnInviteCode = selfCode
	span.SetAttributes(attribute.String("member.invite_code", selfCode))

	level1, err := uc.store.FindEqual(ctx, FieldUsedInviteCode, selfCode, referralOrder)
	if err != nil {
		err = storeError("find level1", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "store.FindEqual failed")
		l.Errorf("Resolve level1 failed member_id=%s code=%s err=%v", memberID, selfCode, err)
		return nil, err
	}

	// 根会员自己不计入任何一层；数据里出现环时也不会重复计数
	seen := map[string]struct{}{root.ID: {}}
	tree.Level1 = takeUnseen(level1, seen)
	if len(tree.Level1) < len(level1) {
		l.Warnf("Resolve dropped repeated rows from level1 member_id=%s code=%s", memberID, selfCode)
	}

	codeSet := uc.collectCodes(tree.Level1, selfCode)
	if len(codeSet) == 0 {
		span.SetAttributes(attribute.Int("referral.level1", len(tree.Level1)))
		span.SetStatus(codes.Ok, "OK")
		l.Infof("Resolve success member_id=%s level1=%d level2=0", memberID, len(tree.Level1))
		return tree, nil
	}

	level2, err := uc.store.FindIn(ctx, FieldUsedInviteCode, codeSet, referralOrder)
	if err != nil {
		err = storeError("find level2", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "store.FindIn failed")
		l.Errorf("Resolve level2 failed member_id=%s codes=%d err=%v", memberID, len(codeSet), err)
		return nil, err
	}
	tree.Level2 = takeUnseen(level2, seen)

	span.SetAttributes(
		attribute.Int("referral.level1", len(tree.Level1)),
		attribute.Int("referral.level2", len(tree.Level2)),
	)
	span.SetStatus(codes.Ok, "OK")
	l.Infof("Resolve success member_id=%s level1=%d level2=%d", memberID, len(tree.Level1), len(tree.Level2))
	return tree, nil
}

// collectCodes 收集一级下线的邀请码，去重并保持出现顺序。
func (uc *ReferralUsecase) collectCodes(level1 []*Member, selfCode string) []any {
	codes := make([]any, 0, len(level1))
	seen := map[string]struct{}{selfCode: {}}
	for _, m := range level1 {
		code, ok := uc.fields.Resolve(m.Attrs)
		if !ok {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}

func takeUnseen(rows []*Member, seen map[string]struct{}) []*Member {
	out := make([]*Member, 0, len(rows))
	for _, m := range rows {
		if m == nil {
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}
