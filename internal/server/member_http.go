package server

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"net/url"
	"strconv"
	"strings"

	"referralhub/internal/service"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/encoding"
	"github.com/go-kratos/kratos/v2/encoding/json"
	httpx "github.com/go-kratos/kratos/v2/transport/http"
)

const (
	OperationGetReferralTree = "/referralhub.member.v1.Member/GetReferralTree"
	OperationListMembers     = "/referralhub.member.v1.Member/ListMembers"
	OperationBatchUpdate     = "/referralhub.member.v1.Member/BatchUpdate"
	OperationUpdateMember    = "/referralhub.member.v1.Member/UpdateMember"
)

func registerMemberHTTPServer(s *httpx.Server, svc *service.MemberService) {
	r := s.Route("/")
	r.GET("/v1/members/{id}/referrals", getReferralTreeHandler(svc))
	r.GET("/v1/members", listMembersHandler(svc))
	r.POST("/v1/members/batch", batchUpdateHandler(svc))
	r.PATCH("/v1/members/{id}", updateMemberHandler(svc))
}

func getReferralTreeHandler(svc *service.MemberService) func(httpx.Context) error {
	return func(ctx httpx.Context) error {
		in := service.GetReferralTreeRequest{ID: ctx.Vars().Get("id")}
		httpx.SetOperation(ctx, OperationGetReferralTree)
		h := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			return svc.GetReferralTree(ctx, req.(*service.GetReferralTreeRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*service.ReferralTreeReply))
	}
}

func listMembersHandler(svc *service.MemberService) func(httpx.Context) error {
	return func(ctx httpx.Context) error {
		in, err := parseListQuery(ctx.Query())
		if err != nil {
			return err
		}
		httpx.SetOperation(ctx, OperationListMembers)
		h := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			return svc.ListMembers(ctx, req.(*service.ListMembersRequest))
		})
		out, err := h(ctx, in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*service.ListMembersReply))
	}
}

func batchUpdateHandler(svc *service.MemberService) func(httpx.Context) error {
	return func(ctx httpx.Context) error {
		var in service.BatchUpdateRequest
		if err := ctx.Bind(&in); err != nil {
			return badRequest("invalid request body: %v", err)
		}
		httpx.SetOperation(ctx, OperationBatchUpdate)
		h := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			return svc.BatchUpdate(ctx, req.(*service.BatchUpdateRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*service.BatchUpdateReply))
	}
}

func updateMemberHandler(svc *service.MemberService) func(httpx.Context) error {
	return func(ctx httpx.Context) error {
		var in service.UpdateMemberRequest
		if err := ctx.Bind(&in); err != nil {
			return badRequest("invalid request body: %v", err)
		}
		in.ID = ctx.Vars().Get("id")
		httpx.SetOperation(ctx, OperationUpdateMember)
		h := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			return svc.UpdateMember(ctx, req.(*service.UpdateMemberRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*service.UpdateMemberReply))
	}
}

func badRequest(format string, args ...any) error {
	return kerrors.BadRequest("InvalidArgument", fmt.Sprintf(format, args...))
}

// parseListQuery 解析列表的查询参数。status 支持逗号分隔或重复传参。
func parseListQuery(q url.Values) (*service.ListMembersRequest, error) {
	in := &service.ListMembersRequest{
		Search:        q.Get("search"),
		SortField:     q.Get("sort_field"),
		SortDirection: q.Get("sort_direction"),
	}
	for _, raw := range q["status"] {
		for _, st := range strings.Split(raw, ",") {
			if st = strings.TrimSpace(st); st != "" {
				in.Status = append(in.Status, st)
			}
		}
	}

	var err error
	if in.Page, err = intParam(q, "page"); err != nil {
		return nil, err
	}
	if in.PerPage, err = intParam(q, "per_page"); err != nil {
		return nil, err
	}
	if raw := strings.TrimSpace(q.Get("selected")); raw != "" {
		b, perr := strconv.ParseBool(raw)
		if perr != nil {
			return nil, badRequest("selected must be a boolean, got %q", raw)
		}
		in.Selected = &b
	}
	return in, nil
}

func intParam(q url.Values, key string) (int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer, got %q", key, raw)
	}
	return n, nil
}

// errorEnvelope 是所有失败响应的统一格式
type errorEnvelope struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

var knownKinds = map[string]struct{}{
	"InvalidArgument": {},
	"NotFound":        {},
	"StoreError":      {},
	"Unauthorized":    {},
	"Forbidden":       {},
}

func kindFor(se *kerrors.Error) string {
	if _, ok := knownKinds[se.Reason]; ok {
		return se.Reason
	}
	switch se.Code {
	case stdhttp.StatusBadRequest:
		return "InvalidArgument"
	case stdhttp.StatusUnauthorized:
		return "Unauthorized"
	case stdhttp.StatusForbidden:
		return "Forbidden"
	case stdhttp.StatusNotFound:
		return "NotFound"
	case stdhttp.StatusTooManyRequests:
		return "RateLimited"
	default:
		return "Internal"
	}
}

// memberErrorEncoder 把错误统一写成 {error_kind, message}
func memberErrorEncoder(w stdhttp.ResponseWriter, r *stdhttp.Request, err error) {
	se := kerrors.FromError(err)
	body, merr := encoding.GetCodec(json.Name).Marshal(&errorEnvelope{
		ErrorKind: kindFor(se),
		Message:   se.Message,
	})
	if merr != nil {
		w.WriteHeader(stdhttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(int(se.Code))
	_, _ = w.Write(body)
}
