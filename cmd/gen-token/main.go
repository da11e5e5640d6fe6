// cmd/gen-token/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"referralhub/internal/biz"
	jwtutil "referralhub/pkg/jwt"
)

// 给运维或联调签发一个访问令牌
// 用法: gen-token -secret xxx -operator ops-1 -name alice -admin -ttl 24h
// secret 为空时读 REFERRALHUB_JWT_SECRET
func main() {
	secret := flag.String("secret", os.Getenv("REFERRALHUB_JWT_SECRET"), "HMAC secret, same as data.auth.jwt_secret")
	operator := flag.String("operator", "", "operator id")
	name := flag.String("name", "", "operator display name")
	admin := flag.Bool("admin", false, "issue an admin token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *operator == "" {
		fmt.Println("usage: gen-token -operator <id> [-name n] [-admin] [-ttl 24h] [-secret s]")
		os.Exit(1)
	}

	role := biz.RoleOperator
	if *admin {
		role = biz.RoleAdmin
	}

	token, expireAt, err := jwtutil.NewToken(jwtutil.Config{
		Secret:         []byte(*secret),
		ExpireDuration: *ttl,
	}, *operator, *name, int8(role))
	if err != nil {
		fmt.Printf("sign token failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expireAt.Format(time.RFC3339))
}
