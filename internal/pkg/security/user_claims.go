package security

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	JWTIssuer         = "Murmur"
	JWTExpirationTime = time.Hour * 24
)

// UserClaims 令牌里携带的身份信息，由外部账号服务签发
type UserClaims struct {
	UserID uint64   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}
