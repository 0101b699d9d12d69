package model

import (
	"fmt"
	"strings"
)

// MessageKind 消息类型
type MessageKind string

const (
	KindText       MessageKind = "text"
	KindReaction   MessageKind = "reaction"
	KindImage      MessageKind = "image"
	KindVideo      MessageKind = "video"
	KindAudio      MessageKind = "audio"
	KindFile       MessageKind = "file"
	KindSharedPost MessageKind = "shared-post"
	KindSharedReel MessageKind = "shared-reel"
)

// Valid 是否是已知类型
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindReaction, KindImage, KindVideo, KindAudio, KindFile, KindSharedPost, KindSharedReel:
		return true
	}
	return false
}

// CarriesText text/reaction 的正文是必填的加密载荷
func (k MessageKind) CarriesText() bool {
	return k == KindText || k == KindReaction
}

// MessageStatus 消息投递状态
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusSeen      MessageStatus = "seen"
	StatusFailed    MessageStatus = "failed"
)

var statusRank = map[MessageStatus]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusSeen:      3,
}

// CanAdvanceTo 状态只能前进；failed 只能由 sending 进入，且为终态
func (s MessageStatus) CanAdvanceTo(next MessageStatus) bool {
	if s == StatusFailed {
		return false
	}
	if next == StatusFailed {
		return s == StatusSending
	}
	cur, ok1 := statusRank[s]
	nxt, ok2 := statusRank[next]
	return ok1 && ok2 && nxt > cur
}

// Predecessors 能推进到 next 的全部状态，用于条件更新
func (s MessageStatus) Predecessors() []MessageStatus {
	var out []MessageStatus
	for _, cand := range []MessageStatus{StatusSending, StatusSent, StatusDelivered, StatusSeen} {
		if cand.CanAdvanceTo(s) {
			out = append(out, cand)
		}
	}
	return out
}

// MediaType 附件类型
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
	MediaFile  MediaType = "file"
)

// MediaTypeOf 按 MIME 前缀归类
func MediaTypeOf(mime string) MediaType {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return MediaImage
	case strings.HasPrefix(mime, "video/"):
		return MediaVideo
	case strings.HasPrefix(mime, "audio/"):
		return MediaAudio
	default:
		return MediaFile
	}
}

// Attachment 媒体附件，URL 为对象存储中的 key
type Attachment struct {
	URL       string    `bson:"url" json:"url"`
	Type      MediaType `bson:"type" json:"type"`
	MimeType  string    `bson:"mime_type,omitempty" json:"mime_type,omitempty"`
	Size      int64     `bson:"size" json:"size"`
	Width     int       `bson:"width,omitempty" json:"width,omitempty"`
	Height    int       `bson:"height,omitempty" json:"height,omitempty"`
	Duration  float64   `bson:"duration,omitempty" json:"duration,omitempty"`
	Thumbnail string    `bson:"thumbnail,omitempty" json:"thumbnail,omitempty"`
}

// SharedSnapshot 发送时对帖子/短视频的冗余快照，源内容删除后历史仍可展示
type SharedSnapshot struct {
	ContentID  string `bson:"content_id" json:"content_id"`
	Type       string `bson:"type" json:"type"`
	AuthorID   uint64 `bson:"author_id" json:"author_id"`
	AuthorName string `bson:"author_name,omitempty" json:"author_name,omitempty"`
	Caption    string `bson:"caption,omitempty" json:"caption,omitempty"`
	MediaURL   string `bson:"media_url,omitempty" json:"media_url,omitempty"`
	Thumbnail  string `bson:"thumbnail,omitempty" json:"thumbnail,omitempty"`
}

// Body 消息内容，每种类型一个构造函数
type Body interface {
	Kind() MessageKind
	// Text 需要加密存储的正文，没有时为空
	Text() string
	isBody()
}

type TextBody struct {
	text string
}

type ReactionBody struct {
	emoji string
}

type MediaBody struct {
	kind        MessageKind
	caption     string
	Attachments []Attachment
}

type SharedBody struct {
	kind     MessageKind
	caption  string
	Snapshot SharedSnapshot
}

func NewTextBody(text string) (TextBody, error) {
	if strings.TrimSpace(text) == "" {
		return TextBody{}, fmt.Errorf("text body: empty text")
	}
	return TextBody{text: text}, nil
}

func NewReactionBody(emoji string) (ReactionBody, error) {
	if strings.TrimSpace(emoji) == "" {
		return ReactionBody{}, fmt.Errorf("reaction body: empty reaction")
	}
	return ReactionBody{emoji: emoji}, nil
}

// NewMediaBody 消息类型取第一个附件的类型
func NewMediaBody(caption string, attachments []Attachment) (MediaBody, error) {
	if len(attachments) == 0 {
		return MediaBody{}, fmt.Errorf("media body: no attachments")
	}
	kind := MessageKind(attachments[0].Type)
	if !kind.Valid() {
		kind = KindFile
	}
	return MediaBody{kind: kind, caption: caption, Attachments: attachments}, nil
}

func NewSharedBody(caption string, snap SharedSnapshot) (SharedBody, error) {
	var kind MessageKind
	switch snap.Type {
	case "post":
		kind = KindSharedPost
	case "reel":
		kind = KindSharedReel
	default:
		return SharedBody{}, fmt.Errorf("shared body: unknown content type %q", snap.Type)
	}
	return SharedBody{kind: kind, caption: caption, Snapshot: snap}, nil
}

func (b TextBody) Kind() MessageKind     { return KindText }
func (b ReactionBody) Kind() MessageKind { return KindReaction }
func (b MediaBody) Kind() MessageKind    { return b.kind }
func (b SharedBody) Kind() MessageKind   { return b.kind }

func (b TextBody) Text() string     { return b.text }
func (b ReactionBody) Text() string { return b.emoji }
func (b MediaBody) Text() string    { return b.caption }
func (b SharedBody) Text() string   { return b.caption }

func (TextBody) isBody()     {}
func (ReactionBody) isBody() {}
func (MediaBody) isBody()    {}
func (SharedBody) isBody()   {}

// WithText 编辑后替换正文，只对文本类消息有意义
func WithText(b Body, text string) (Body, error) {
	switch v := b.(type) {
	case TextBody:
		return NewTextBody(text)
	case ReactionBody:
		return NewReactionBody(text)
	case MediaBody:
		v.caption = text
		return v, nil
	case SharedBody:
		v.caption = text
		return v, nil
	default:
		return nil, fmt.Errorf("unknown body %T", b)
	}
}
