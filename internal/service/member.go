package service

import (
	"context"
	"fmt"

	"referralhub/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

type MemberService struct {
	referral *biz.ReferralUsecase
	admin    *biz.MemberAdminUsecase
	log      *log.Helper
}

func NewMemberService(referral *biz.ReferralUsecase, admin *biz.MemberAdminUsecase, logger log.Logger) *MemberService {
	return &MemberService{
		referral: referral,
		admin:    admin,
		log:      log.NewHelper(log.With(logger, "module", "service.member")),
	}
}

// GetReferralTree 任何登录用户都可以查
func (s *MemberService) GetReferralTree(ctx context.Context, req *GetReferralTreeRequest) (*ReferralTreeReply, error) {
	if err := s.requireLogin(ctx); err != nil {
		return nil, err
	}
	tree, err := s.referral.Resolve(ctx, req.ID)
	if err != nil {
		return nil, toTransportError(err)
	}
	return &ReferralTreeReply{
		Member: toView(tree.Member),
		Referrals: ReferralLevels{
			Level1: toViews(tree.Level1),
			Level2: toViews(tree.Level2),
		},
	}, nil
}

func (s *MemberService) ListMembers(ctx context.Context, req *ListMembersRequest) (*ListMembersReply, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	statuses := make([]biz.Status, 0, len(req.Status))
	for _, st := range req.Status {
		statuses = append(statuses, biz.Status(st))
	}
	page, err := s.admin.List(ctx, biz.ListFilter{
		SearchText:    req.Search,
		Statuses:      statuses,
		Selected:      req.Selected,
		Page:          req.Page,
		PerPage:       req.PerPage,
		SortField:     req.SortField,
		SortDirection: req.SortDirection,
	})
	if err != nil {
		return nil, toTransportError(err)
	}
	return &ListMembersReply{
		Rows:       toViews(page.Rows),
		TotalCount: page.TotalCount,
		Page:       page.Page,
		PerPage:    page.PerPage,
	}, nil
}

func (s *MemberService) BatchUpdate(ctx context.Context, req *BatchUpdateRequest) (*BatchUpdateReply, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	res, err := s.admin.ApplyBatch(ctx, req.IDs, toMutation(req.Status, req.Selected))
	if err != nil {
		return nil, toTransportError(err)
	}
	return &BatchUpdateReply{
		UpdatedCount: res.UpdatedCount,
		Rows:         toViews(res.Rows),
	}, nil
}

func (s *MemberService) UpdateMember(ctx context.Context, req *UpdateMemberRequest) (*UpdateMemberReply, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	m, err := s.admin.UpdateOne(ctx, req.ID, toMutation(req.Status, req.Selected))
	if err != nil {
		return nil, toTransportError(err)
	}
	return &UpdateMemberReply{Member: toView(m)}, nil
}

func (s *MemberService) requireLogin(ctx context.Context) error {
	if _, ok := biz.GetAuthClaims(ctx); ok {
		return nil
	}
	st := biz.AuthStateFrom(ctx)
	s.log.WithContext(ctx).Infof("reject unauthenticated request auth_state=%s", st)
	switch st {
	case biz.AuthExpired:
		return toTransportError(fmt.Errorf("%w: token expired", biz.ErrUnauthorized))
	case biz.AuthInvalid:
		return toTransportError(fmt.Errorf("%w: invalid token", biz.ErrUnauthorized))
	default:
		return toTransportError(fmt.Errorf("%w: login required", biz.ErrUnauthorized))
	}
}

func (s *MemberService) requireAdmin(ctx context.Context) error {
	if err := s.requireLogin(ctx); err != nil {
		return err
	}
	c, _ := biz.GetAuthClaims(ctx)
	if !c.IsAdmin() {
		s.log.WithContext(ctx).Warnf("reject non-admin operator_id=%s", c.OperatorID)
		return toTransportError(fmt.Errorf("%w: admin role required", biz.ErrForbidden))
	}
	return nil
}
