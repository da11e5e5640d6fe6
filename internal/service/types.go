package service

import "referralhub/internal/biz"

// MemberView 是返回给调用方的会员，整行原样透传（含未知列）
type MemberView map[string]any

type GetReferralTreeRequest struct {
	ID string `json:"id"`
}

type ReferralLevels struct {
	Level1 []MemberView `json:"level1"`
	Level2 []MemberView `json:"level2"`
}

type ReferralTreeReply struct {
	Member    MemberView     `json:"member"`
	Referrals ReferralLevels `json:"referrals"`
}

type ListMembersRequest struct {
	Search        string   `json:"search"`
	Status        []string `json:"status"`
	Page          int      `json:"page"`
	PerPage       int      `json:"per_page"`
	SortField     string   `json:"sort_field"`
	SortDirection string   `json:"sort_direction"`
	Selected      *bool    `json:"selected,omitempty"`
}

type ListMembersReply struct {
	Rows       []MemberView `json:"rows"`
	TotalCount int          `json:"total_count"`
	Page       int          `json:"page"`
	PerPage    int          `json:"per_page"`
}

type BatchUpdateRequest struct {
	IDs      []string `json:"ids"`
	Status   *string  `json:"status,omitempty"`
	Selected *bool    `json:"selected,omitempty"`
}

type BatchUpdateReply struct {
	UpdatedCount int          `json:"updated_count"`
	Rows         []MemberView `json:"rows"`
}

type UpdateMemberRequest struct {
	ID       string  `json:"-"`
	Status   *string `json:"status,omitempty"`
	Selected *bool   `json:"selected,omitempty"`
}

type UpdateMemberReply struct {
	Member MemberView `json:"member"`
}

func toView(m *biz.Member) MemberView {
	if m == nil {
		return nil
	}
	return MemberView(m.Attrs)
}

func toViews(ms []*biz.Member) []MemberView {
	out := make([]MemberView, 0, len(ms))
	for _, m := range ms {
		out = append(out, toView(m))
	}
	return out
}

func toMutation(status *string, selected *bool) biz.Mutation {
	var m biz.Mutation
	if status != nil {
		st := biz.Status(*status)
		m.Status = &st
	}
	if selected != nil {
		sel := *selected
		m.Selected = &sel
	}
	return m
}
