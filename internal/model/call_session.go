package model

import (
	"time"
)

type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

func (t CallType) Valid() bool {
	return t == CallAudio || t == CallVideo
}

type CallStatus string

const (
	CallInitiated CallStatus = "initiated"
	CallRinging   CallStatus = "ringing"
	CallAnswered  CallStatus = "answered"
	CallRejected  CallStatus = "rejected"
	CallMissed    CallStatus = "missed"
	CallEnded     CallStatus = "ended"
	CallFailed    CallStatus = "failed"
)

// callTransitions 合法的前驱状态
var callTransitions = map[CallStatus][]CallStatus{
	CallRinging:  {CallInitiated},
	CallAnswered: {CallInitiated, CallRinging},
	CallRejected: {CallInitiated, CallRinging},
	CallMissed:   {CallInitiated, CallRinging},
	CallFailed:   {CallInitiated, CallRinging},
	CallEnded:    {CallAnswered, CallInitiated, CallRinging},
}

// Terminal ended/rejected/missed/failed
func (s CallStatus) Terminal() bool {
	switch s {
	case CallEnded, CallRejected, CallMissed, CallFailed:
		return true
	}
	return false
}

// Active 尚未结束的通话
func (s CallStatus) Active() bool {
	return !s.Terminal()
}

// From 允许进入 s 的前驱状态
func (s CallStatus) From() []CallStatus {
	return callTransitions[s]
}

// CanTransitionTo 状态只能前进
func (s CallStatus) CanTransitionTo(next CallStatus) bool {
	for _, from := range callTransitions[next] {
		if from == s {
			return true
		}
	}
	return false
}

type CallEndReason string

const (
	EndNormal       CallEndReason = "normal"
	EndBusy         CallEndReason = "busy"
	EndDeclined     CallEndReason = "declined"
	EndNoAnswer     CallEndReason = "no_answer"
	EndNetworkError CallEndReason = "network_error"
	EndTimeout      CallEndReason = "timeout"
	EndOffline      CallEndReason = "offline"
)

func (r CallEndReason) Valid() bool {
	switch r {
	case EndNormal, EndBusy, EndDeclined, EndNoAnswer, EndNetworkError, EndTimeout, EndOffline:
		return true
	}
	return false
}

// CallQuality 客户端结束通话时上报的质量指标，码率 kbps，丢包率为百分比，抖动与延迟为毫秒
type CallQuality struct {
	AvgBitrate float64 `gorm:"not null;default:0"`
	PacketLoss float64 `gorm:"not null;default:0"`
	Jitter     float64 `gorm:"not null;default:0"`
	Latency    float64 `gorm:"not null;default:0"`
}

func (q CallQuality) IsZero() bool {
	return q == CallQuality{}
}

// Columns 按 embeddedPrefix 展开后的列，供条件更新使用
func (q CallQuality) Columns() map[string]interface{} {
	return map[string]interface{}{
		"quality_avg_bitrate": q.AvgBitrate,
		"quality_packet_loss": q.PacketLoss,
		"quality_jitter":      q.Jitter,
		"quality_latency":     q.Latency,
	}
}

// CallSession 通话记录
type CallSession struct {
	ID         string     `gorm:"type:char(36);primaryKey"`
	Type       CallType   `gorm:"type:varchar(10);not null"`
	CallerID   uint64     `gorm:"not null;index:idx_caller_created,priority:1"`
	ReceiverID uint64     `gorm:"not null;index:idx_receiver_created,priority:1"`
	ThreadID   string     `gorm:"type:char(24);not null;index"`
	Status     CallStatus `gorm:"type:varchar(16);not null;index"`
	SessionKey string     `gorm:"type:varchar(64);not null"`
	StartedAt  time.Time  `gorm:"not null"`
	AnsweredAt *time.Time
	EndedAt    *time.Time
	Duration   int           `gorm:"not null;default:0"`
	Quality    CallQuality   `gorm:"embedded;embeddedPrefix:quality_"`
	EndReason  CallEndReason `gorm:"type:varchar(20)"`
	CreatedAt  time.Time     `gorm:"index:idx_caller_created,priority:2;index:idx_receiver_created,priority:2"`
	UpdatedAt  time.Time
}

func (CallSession) TableName() string {
	return "call_sessions"
}

// IsParticipant 主叫或被叫
func (c *CallSession) IsParticipant(userID uint64) bool {
	return c.CallerID == userID || c.ReceiverID == userID
}

// Peer 返回另一方
func (c *CallSession) Peer(userID uint64) uint64 {
	if c.CallerID == userID {
		return c.ReceiverID
	}
	return c.CallerID
}
