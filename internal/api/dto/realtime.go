package dto

import "github.com/goccy/go-json"

// InboundEvent 客户端发来的事件，AckID 非空时服务端回 ack
type InboundEvent struct {
	Event string          `json:"event"`
	AckID string          `json:"ack_id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundEvent 推送给客户端的事件
type OutboundEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// AckEvent 对带 ack_id 请求的应答
type AckEvent struct {
	AckID string      `json:"ack_id"`
	OK    bool        `json:"ok"`
	Code  int         `json:"code,omitempty"`
	Error string      `json:"error,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// ErrorEvent error 推送
type ErrorEvent struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

// ThreadRoomReq joinThread / leaveThread / typing / stopTyping
type ThreadRoomReq struct {
	ThreadID string `json:"thread_id" validate:"required,len=24,hexadecimal"`
}

// WSSendMessageReq sendMessage 快速通道
type WSSendMessageReq struct {
	ThreadID string `json:"thread_id" validate:"required,len=24,hexadecimal"`
	SendMessageReq
}

// MessageRefReq messageDelivered
type MessageRefReq struct {
	MessageID string `json:"message_id" validate:"required,len=24,hexadecimal"`
}

// WSCallReq initiateCall
type WSCallReq struct {
	ReceiverID uint64 `json:"receiver_id" validate:"required"`
	Type       string `json:"type" validate:"required,oneof=audio video"`
}

// WSCallRefReq acceptCall / rejectCall / endCall
type WSCallRefReq struct {
	CallID string `json:"call_id" validate:"required,uuid"`
	EndCallReq
}

// TypingEvent userTyping 推送
type TypingEvent struct {
	ThreadID string `json:"thread_id"`
	UserID   uint64 `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// PresenceEvent userOnline / userOffline 推送
type PresenceEvent struct {
	UserID uint64 `json:"user_id"`
}
