package dto

import "time"

// RequestCallReq 发起通话
type RequestCallReq struct {
	Type string `json:"type" validate:"required,oneof=audio video"`
}

// CallQualityDTO 字段名沿用客户端 WebRTC 统计的命名
type CallQualityDTO struct {
	AvgBitrate float64 `json:"avgBitrate" validate:"gte=0"`
	PacketLoss float64 `json:"packetLoss" validate:"gte=0,lte=100"`
	Jitter     float64 `json:"jitter" validate:"gte=0"`
	Latency    float64 `json:"latency" validate:"gte=0"`
}

// EndCallReq 结束通话，Duration 为空时由服务端根据接通时间计算
type EndCallReq struct {
	Duration *int            `json:"duration" validate:"omitempty,gte=0"`
	Quality  *CallQualityDTO `json:"quality" validate:"omitempty"`
	Reason   string          `json:"reason" validate:"omitempty,oneof=normal busy declined no_answer network_error timeout"`
}

// CallListReq 通话记录分页
type CallListReq struct {
	Limit  int `form:"limit" validate:"gte=0,lte=100"`
	Offset int `form:"offset" validate:"gte=0"`
}

// SignalReq offer/answer/iceCandidate 透传
type SignalReq struct {
	CallID  string      `json:"call_id"`
	To      uint64      `json:"to" validate:"required"`
	Payload interface{} `json:"payload"`
}

// CallDTO 通话记录
type CallDTO struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	CallerID   uint64          `json:"caller_id"`
	ReceiverID uint64          `json:"receiver_id"`
	ThreadID   string          `json:"thread_id"`
	Status     string          `json:"status"`
	SessionKey string          `json:"session_key,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	AnsweredAt *time.Time      `json:"answered_at,omitempty"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
	Duration   int             `json:"duration"`
	Quality    *CallQualityDTO `json:"quality,omitempty"`
	EndReason  string          `json:"end_reason,omitempty"`
}

// IncomingCallEvent 来电推送，携带本次通话的会话密钥
type IncomingCallEvent struct {
	CallID     string        `json:"call_id"`
	ThreadID   string        `json:"thread_id"`
	Type       string        `json:"type"`
	Caller     *UserBriefDTO `json:"caller"`
	SessionKey string        `json:"session_key"`
}

// CallEvent callAccepted / callRejected / callEnded 推送
type CallEvent struct {
	CallID   string `json:"call_id"`
	UserID   uint64 `json:"user_id"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// CallFailedEvent 对方离线、占线或不可达
type CallFailedEvent struct {
	CallID  string `json:"call_id,omitempty"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// SignalEvent 转发给对端的信令
type SignalEvent struct {
	CallID  string      `json:"call_id,omitempty"`
	From    uint64      `json:"from"`
	Payload interface{} `json:"payload"`
}
