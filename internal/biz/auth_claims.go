package biz

import "context"

type Role int8

const (
	RoleOperator Role = 0
	RoleAdmin    Role = 1
)

// AuthClaims 是已校验的 bearer token 里携带的操作员身份。
type AuthClaims struct {
	OperatorID string
	Name       string
	Role       Role
}

func (c *AuthClaims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

type ctxKeyAuthClaims struct{}

func WithAuthClaims(ctx context.Context, c *AuthClaims) context.Context {
	return context.WithValue(ctx, ctxKeyAuthClaims{}, c)
}

func GetAuthClaims(ctx context.Context) (*AuthClaims, bool) {
	c, ok := ctx.Value(ctxKeyAuthClaims{}).(*AuthClaims)
	return c, ok && c != nil
}

type ctxKeyAuthState struct{}

// AuthState 区分“没带 token”和“token 无效/过期”，后两者在 service 层都返回 401，但日志不同。
type AuthState int

const (
	AuthNone AuthState = iota
	AuthOK
	AuthExpired
	AuthInvalid
)

func (s AuthState) String() string {
	switch s {
	case AuthOK:
		return "ok"
	case AuthExpired:
		return "expired"
	case AuthInvalid:
		return "invalid"
	default:
		return "none"
	}
}

func WithAuthState(ctx context.Context, st AuthState) context.Context {
	return context.WithValue(ctx, ctxKeyAuthState{}, st)
}

func AuthStateFrom(ctx context.Context) AuthState {
	if x, ok := ctx.Value(ctxKeyAuthState{}).(AuthState); ok {
		return x
	}
	return AuthNone
}
