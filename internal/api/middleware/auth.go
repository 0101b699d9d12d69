package middleware

import (
	"Murmur/internal/pkg/bus"
	"Murmur/internal/pkg/consts"
	"Murmur/internal/pkg/metrics"
	"Murmur/internal/pkg/response"
	"Murmur/internal/pkg/security"
	"Murmur/internal/service"
	"context"
	log "log/slog"

	"github.com/gin-gonic/gin"
)

// UserIDKey gin.Context 中当前用户 ID 的 key
const UserIDKey = "user_id"

// Authenticator 校验 JWT 并检查吊销列表
type Authenticator struct {
	store bus.Store
}

func NewAuthenticator(store bus.Store) *Authenticator {
	return &Authenticator{store: store}
}

// Authenticate 吊销列表不可达时只校验签名，不拒绝请求
func (s *Authenticator) Authenticate(ctx context.Context, token string) (*security.UserClaims, error) {
	signature, err := security.ExtractSignature(token)
	if err != nil {
		return nil, service.UnauthorizedError
	}

	_, revoked, err := s.store.Get(ctx, consts.TokenRevokedKey+signature)
	switch {
	case err != nil && bus.IsUnavailable(err):
		metrics.Degraded.WithLabelValues("token_revocation").Inc()
		log.WarnContext(ctx, "token revocation check skipped", "err", err)
	case err != nil:
		return nil, err
	case revoked:
		return nil, service.UnauthorizedError
	}

	claims, err := security.ValidateToken(token)
	if err != nil {
		return nil, service.UnauthorizedError
	}
	return claims, nil
}

// AuthMiddleware 负责验证 JWT 并将用户身份信息注入 Context
func (s *Authenticator) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := security.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.Fail(c, service.Unauthorized, "Token 缺失或格式错误")
			c.Abort()
			return
		}

		claims, err := s.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}
