package handler

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/api/middleware"
	"Murmur/internal/pkg/response"
	"Murmur/internal/pkg/util"
	"Murmur/internal/service"
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
)

type IMHandler struct {
	imService service.IMService
}

func NewIMHandler(imService service.IMService) *IMHandler {
	return &IMHandler{imService: imService}
}

// bindJSON 解析并校验请求体，失败时已写入响应
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return false
	}
	if err := util.ValidateDTO(req); err != nil {
		response.Error(c, err)
		return false
	}
	return true
}

// bindQuery 同 bindJSON，读取 query string
func bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return false
	}
	if err := util.ValidateDTO(req); err != nil {
		response.Error(c, err)
		return false
	}
	return true
}

func currentUser(c *gin.Context) uint64 {
	return c.GetUint64(middleware.UserIDKey)
}

func uintParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, service.ErrParamInvalid)
		return 0, false
	}
	return id, true
}

// CreateThread 与 receiver 的会话，已存在时直接返回
func (s *IMHandler) CreateThread(c *gin.Context) {
	receiverID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	res, _, err := s.imService.CreateOrGetThread(c.Request.Context(), currentUser(c), receiverID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *IMHandler) ListThreads(c *gin.Context) {
	var req dto.ThreadListReq
	if !bindQuery(c, &req) {
		return
	}
	res, err := s.imService.ListThreads(c.Request.Context(), currentUser(c), req.Limit, req.Skip)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *IMHandler) DeleteThread(c *gin.Context) {
	if err := s.imService.DeleteThread(c.Request.Context(), c.Param("id"), currentUser(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *IMHandler) PinThread(c *gin.Context) {
	s.setFlag(c, s.imService.SetPinned)
}

func (s *IMHandler) ArchiveThread(c *gin.Context) {
	s.setFlag(c, s.imService.SetArchived)
}

func (s *IMHandler) BlockThread(c *gin.Context) {
	s.setFlag(c, s.imService.SetBlocked)
}

func (s *IMHandler) setFlag(c *gin.Context, set func(context.Context, string, uint64, bool) error) {
	var req dto.FlagReq
	if !bindJSON(c, &req) {
		return
	}
	if err := set(c.Request.Context(), c.Param("id"), currentUser(c), *req.Value); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// SendMessage 发送消息接口
func (s *IMHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageReq
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.imService.SendMessage(c.Request.Context(), currentUser(c), c.Param("id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetMessages 按时间倒序的游标分页
func (s *IMHandler) GetMessages(c *gin.Context) {
	var req dto.MessageListReq
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.imService.GetMessages(c.Request.Context(), c.Param("id"), currentUser(c), req.Cursor, req.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// MarkSeen 返回本次标记为已读的条数
func (s *IMHandler) MarkSeen(c *gin.Context) {
	n, err := s.imService.MarkSeen(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"updated": n})
}

func (s *IMHandler) EditMessage(c *gin.Context) {
	var req dto.EditMessageReq
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.imService.EditMessage(c.Request.Context(), c.Param("id"), currentUser(c), req.Text)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// DeleteMessage scope 取 query 参数，默认仅自己不可见
func (s *IMHandler) DeleteMessage(c *gin.Context) {
	req := dto.DeleteMessageReq{Scope: c.DefaultQuery("scope", service.ScopeMe)}
	if err := util.ValidateDTO(&req); err != nil {
		response.Error(c, service.ErrInvalidScope)
		return
	}
	if err := s.imService.DeleteMessage(c.Request.Context(), c.Param("id"), currentUser(c), req.Scope); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
