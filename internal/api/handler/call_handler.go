package handler

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/pkg/response"
	"Murmur/internal/service"

	"github.com/gin-gonic/gin"
)

type CallHandler struct {
	callService service.CallService
}

func NewCallHandler(callService service.CallService) *CallHandler {
	return &CallHandler{callService: callService}
}

// RequestCall 对方离线或占线时返回 status=failed 的记录，不是错误
func (s *CallHandler) RequestCall(c *gin.Context) {
	receiverID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req dto.RequestCallReq
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.callService.RequestCall(c.Request.Context(), currentUser(c), receiverID, req.Type)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *CallHandler) EndCall(c *gin.Context) {
	var req dto.EndCallReq
	// body 可以为空
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	res, err := s.callService.EndCall(c.Request.Context(), c.Param("id"), currentUser(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *CallHandler) GetCall(c *gin.Context) {
	res, err := s.callService.GetCall(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// ListCalls 通话记录，按发起时间倒序
func (s *CallHandler) ListCalls(c *gin.Context) {
	var req dto.CallListReq
	if !bindQuery(c, &req) {
		return
	}
	res, err := s.callService.ListCalls(c.Request.Context(), currentUser(c), req.Limit, req.Offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
