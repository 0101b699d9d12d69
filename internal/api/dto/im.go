package dto

import "time"

// MediaAttachmentReq 已上传附件，URL 为上传接口返回的对象 key
type MediaAttachmentReq struct {
	URL       string  `json:"url" validate:"required,max=512"`
	MimeType  string  `json:"mime_type" validate:"required,max=128"`
	Size      int64   `json:"size" validate:"gte=0"`
	Width     int     `json:"width" validate:"gte=0"`
	Height    int     `json:"height" validate:"gte=0"`
	Duration  float64 `json:"duration" validate:"gte=0"`
	Thumbnail string  `json:"thumbnail" validate:"max=512"`
}

// SharedContentReq 分享帖子或短视频
type SharedContentReq struct {
	Type string `json:"type" validate:"required,oneof=post reel"`
	ID   string `json:"id" validate:"required,max=64"`
}

// SendMessageReq 发送消息请求体，text/reaction/media/shared_content 至少一项
type SendMessageReq struct {
	Text          string                `json:"text" validate:"max=10000"`
	Reaction      string                `json:"reaction" validate:"max=32"`
	Media         []*MediaAttachmentReq `json:"media" validate:"max=10,dive"`
	SharedContent *SharedContentReq     `json:"shared_content" validate:"omitempty"`
	ReplyTo       string                `json:"reply_to" validate:"omitempty,len=24,hexadecimal"`
}

// EditMessageReq 编辑消息
type EditMessageReq struct {
	Text string `json:"text" validate:"required,max=10000"`
}

// DeleteMessageReq 删除范围 everyone | me
type DeleteMessageReq struct {
	Scope string `form:"scope" json:"scope" validate:"required,oneof=everyone me"`
}

// MessageListReq 游标分页
type MessageListReq struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit"`
}

// ThreadListReq 会话列表分页
type ThreadListReq struct {
	Limit int64 `form:"limit" validate:"gte=0,lte=100"`
	Skip  int64 `form:"skip" validate:"gte=0"`
}

// FlagReq 置顶/归档/屏蔽开关
type FlagReq struct {
	Value *bool `json:"value" validate:"required"`
}

// AttachmentDTO 附件，Token 用于 GET /media 换取临时链接
type AttachmentDTO struct {
	URL            string  `json:"url"`
	Type           string  `json:"type"`
	MimeType       string  `json:"mime_type,omitempty"`
	Size           int64   `json:"size"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	Duration       float64 `json:"duration,omitempty"`
	Token          string  `json:"token"`
	Thumbnail      string  `json:"thumbnail,omitempty"`
	ThumbnailToken string  `json:"thumbnail_token,omitempty"`
}

// SharedContentDTO 分享内容快照
type SharedContentDTO struct {
	ContentID  string `json:"content_id"`
	Type       string `json:"type"`
	AuthorID   uint64 `json:"author_id"`
	AuthorName string `json:"author_name,omitempty"`
	Caption    string `json:"caption,omitempty"`
	MediaURL   string `json:"media_url,omitempty"`
	Thumbnail  string `json:"thumbnail,omitempty"`
}

// MessageDTO 消息明细响应
type MessageDTO struct {
	ID         string            `json:"id"`
	ThreadID   string            `json:"thread_id"`
	SenderID   uint64            `json:"sender_id"`
	ReceiverID uint64            `json:"receiver_id"`
	Kind       string            `json:"kind"`
	Text       string            `json:"text,omitempty"`
	Media      []*AttachmentDTO  `json:"media,omitempty"`
	Shared     *SharedContentDTO `json:"shared_content,omitempty"`
	ReplyTo    string            `json:"reply_to,omitempty"`
	Status     string            `json:"status"`
	IsEdited   bool              `json:"is_edited"`
	EditedAt   *time.Time        `json:"edited_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// MessagePageDTO 一页消息，按时间正序
type MessagePageDTO struct {
	Messages   []*MessageDTO `json:"messages"`
	NextCursor string        `json:"next_cursor,omitempty"`
	HasMore    bool          `json:"has_more"`
}

// ThreadDTO 会话列表项，成员状态取请求者视角
type ThreadDTO struct {
	ID            string        `json:"id"`
	Participants  []uint64      `json:"participants"`
	PeerID        uint64        `json:"peer_id"`
	Peer          *UserBriefDTO `json:"peer,omitempty"`
	LastMessageID string        `json:"last_message_id,omitempty"`
	LastMessageAt *time.Time    `json:"last_message_at,omitempty"`
	UnreadCount   int64         `json:"unread_count"`
	IsArchived    bool          `json:"is_archived"`
	IsPinned      bool          `json:"is_pinned"`
	IsBlocked     bool          `json:"is_blocked"`
	BlockedBy     uint64        `json:"blocked_by,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// MessageStatusEvent messageStatus 推送
type MessageStatusEvent struct {
	ThreadID  string `json:"thread_id"`
	MessageID string `json:"message_id,omitempty"`
	Status    string `json:"status"`
	UserID    uint64 `json:"user_id"`
	Count     int64  `json:"count,omitempty"`
}

// MessageDeletedEvent messageDeleted 推送
type MessageDeletedEvent struct {
	ThreadID  string `json:"thread_id"`
	MessageID string `json:"message_id"`
	Scope     string `json:"scope"`
	DeletedBy uint64 `json:"deleted_by"`
}

// ThreadEvent threadDeleted / threadBlocked 推送
type ThreadEvent struct {
	ThreadID  string `json:"thread_id"`
	UserID    uint64 `json:"user_id"`
	IsBlocked bool   `json:"is_blocked,omitempty"`
}

// OfflinePush 离线推送，只带元数据不带明文
type OfflinePush struct {
	ReceiverID uint64    `json:"receiver_id"`
	SenderID   uint64    `json:"sender_id"`
	ThreadID   string    `json:"thread_id"`
	MessageID  string    `json:"message_id"`
	Kind       string    `json:"kind"`
	CreatedAt  time.Time `json:"created_at"`
}
