package handler

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/pkg/response"
	"context"

	"github.com/gin-gonic/gin"
)

// OnlineLister 全集群在线用户
type OnlineLister interface {
	ListOnline(ctx context.Context) []uint64
}

type OnlineHandler struct {
	presence OnlineLister
}

func NewOnlineHandler(presence OnlineLister) *OnlineHandler {
	return &OnlineHandler{presence: presence}
}

func (s *OnlineHandler) List(c *gin.Context) {
	ids := s.presence.ListOnline(c.Request.Context())
	response.Success(c, &dto.OnlineUsersDTO{UserIDs: ids, Count: len(ids)})
}
