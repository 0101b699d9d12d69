package mongo

import (
	"Murmur/internal/model"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message MongoDB 消息明细模型，正文只存密文
type Message struct {
	ID         primitive.ObjectID    `bson:"_id,omitempty"`
	ThreadID   primitive.ObjectID    `bson:"thread_id"`
	SenderID   uint64                `bson:"sender_id"`
	ReceiverID uint64                `bson:"receiver_id"`
	Kind       model.MessageKind     `bson:"kind"`
	Ciphertext string                `bson:"ciphertext,omitempty"` // text/reaction 必填，媒体和分享为可选说明
	Media      []model.Attachment    `bson:"media,omitempty"`
	Shared     *model.SharedSnapshot `bson:"shared,omitempty"`
	ReplyTo    *primitive.ObjectID   `bson:"reply_to,omitempty"`
	Status     model.MessageStatus   `bson:"status"`
	Edited     bool                  `bson:"edited"`
	EditedAt   *time.Time            `bson:"edited_at,omitempty"`
	Deleted    bool                  `bson:"deleted"`
	DeletedAt  *time.Time            `bson:"deleted_at,omitempty"`
	DeletedBy  uint64                `bson:"deleted_by,omitempty"`
	HiddenFor  []uint64              `bson:"hidden_for,omitempty"`
	CreatedAt  time.Time             `bson:"created_at"`
}

// HiddenForUser 用户是否"仅自己删除"了该消息
func (m *Message) HiddenForUser(uid uint64) bool {
	for _, id := range m.HiddenFor {
		if id == uid {
			return true
		}
	}
	return false
}

// VisibleTo 列表中是否应展示给 uid
func (m *Message) VisibleTo(uid uint64) bool {
	return !m.Deleted && !m.HiddenForUser(uid)
}
