// internal/server/auth_middleware.go
package server

import (
	"context"
	"errors"
	"strings"

	"referralhub/internal/biz"
	"referralhub/internal/conf"
	jwtutil "referralhub/pkg/jwt"
	"referralhub/pkg/logger"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/golang-jwt/jwt/v5"
)

func bearerToken(auth string) string {
	auth = strings.TrimSpace(auth)
	if auth == "" {
		return ""
	}
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// AuthClaimsMiddleware：解析 JWT -> 注入 ctx claims（不做授权，授权在 service 层）
func AuthClaimsMiddleware(dc *conf.Data, l log.Logger) middleware.Middleware {
	helper := log.NewHelper(log.With(l, "module", "server.auth"))

	if dc == nil || dc.Auth == nil || dc.Auth.JwtSecret == "" {
		helper.Warn("auth middleware disabled (missing data.auth.jwt_secret), all member endpoints will answer 401")
		return func(next middleware.Handler) middleware.Handler {
			return func(ctx context.Context, req any) (any, error) {
				return next(biz.WithAuthState(ctx, biz.AuthNone), req)
			}
		}
	}

	secret := []byte(dc.Auth.JwtSecret)

	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req any) (any, error) {
			// 默认：没登录
			ctx = biz.WithAuthState(ctx, biz.AuthNone)

			tr, ok := transport.FromServerContext(ctx)
			if !ok || tr == nil {
				return next(ctx, req)
			}

			tok := bearerToken(tr.RequestHeader().Get("Authorization"))
			if tok == "" {
				return next(ctx, req)
			}

			claims, err := jwtutil.ParseToken(secret, tok)
			if err == nil && claims != nil {
				ctx = biz.WithAuthClaims(ctx, &biz.AuthClaims{
					OperatorID: claims.OperatorID,
					Name:       claims.Name,
					Role:       biz.Role(claims.Role),
				})
				ctx = biz.WithAuthState(ctx, biz.AuthOK)
				ctx = logger.WithOperatorID(ctx, claims.OperatorID)
				return next(ctx, req)
			}

			// 带了 token 但解析失败：过期 or 无效
			if errors.Is(err, jwt.ErrTokenExpired) {
				ctx = biz.WithAuthState(ctx, biz.AuthExpired)
				helper.WithContext(ctx).Warn("token expired")
			} else {
				ctx = biz.WithAuthState(ctx, biz.AuthInvalid)
				helper.WithContext(ctx).Warnf("parse token failed: %v", err)
			}

			return next(ctx, req)
		}
	}
}
