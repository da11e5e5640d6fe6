// pkg/jwt/jwt.go
package jwtutil

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	OperatorID string `json:"oid"`
	Name       string `json:"name"`

	// 0=operator, 1=admin
	Role int8 `json:"role"`

	jwt.RegisteredClaims
}

type Config struct {
	Secret         []byte        // HMAC 秘钥
	ExpireDuration time.Duration // 过期时间，比如 7 * 24 * time.Hour
}

var ErrEmptySecret = errors.New("jwt: empty secret")

func NewToken(cfg Config, operatorID, name string, role int8) (string, time.Time, error) {
	if len(cfg.Secret) == 0 {
		return "", time.Time{}, ErrEmptySecret
	}
	now := time.Now()
	expireAt := now.Add(cfg.ExpireDuration)

	claims := &Claims{
		OperatorID: operatorID,
		Name:       name,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expireAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   "access_token",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(cfg.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expireAt, nil
}

// ParseToken 只接受 HS256，过期时返回的错误满足 errors.Is(err, jwt.ErrTokenExpired)
func ParseToken(secret []byte, tokenStr string) (*Claims, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}
