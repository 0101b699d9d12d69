package mongo

import (
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemberState 每个参与者在会话里的状态
type MemberState struct {
	Unread   int64 `bson:"unread" json:"unread"`
	Archived bool  `bson:"archived" json:"archived"`
	Pinned   bool  `bson:"pinned" json:"pinned"`
}

// Thread 两人会话
type Thread struct {
	ID            primitive.ObjectID      `bson:"_id,omitempty"`
	PeerKey       string                  `bson:"peer_key"`
	Participants  []uint64                `bson:"participants"`
	Members       map[string]*MemberState `bson:"members"`
	LastMessageID *primitive.ObjectID     `bson:"last_message_id,omitempty"`
	LastMessageAt *time.Time              `bson:"last_message_at,omitempty"`
	Blocked       bool                    `bson:"blocked"`
	BlockedBy     uint64                  `bson:"blocked_by,omitempty"`
	Deleted       bool                    `bson:"deleted"`
	CreatedAt     time.Time               `bson:"created_at"`
	UpdatedAt     time.Time               `bson:"updated_at"`
}

// PeerKey 无序用户对的唯一标识 "小_大"
func PeerKey(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d_%d", a, b)
}

// MemberKey members map 的 key
func MemberKey(uid uint64) string {
	return strconv.FormatUint(uid, 10)
}

// IsParticipant 是否是会话成员
func (t *Thread) IsParticipant(uid uint64) bool {
	for _, p := range t.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

// Peer 另一方，uid 不是成员时返回 0
func (t *Thread) Peer(uid uint64) uint64 {
	if !t.IsParticipant(uid) {
		return 0
	}
	for _, p := range t.Participants {
		if p != uid {
			return p
		}
	}
	return 0
}

// Member 返回 uid 的状态，不存在时返回零值
func (t *Thread) Member(uid uint64) MemberState {
	if m, ok := t.Members[MemberKey(uid)]; ok && m != nil {
		return *m
	}
	return MemberState{}
}
