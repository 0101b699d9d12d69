package service

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/model"
	"Murmur/internal/pkg/consts"
	"Murmur/internal/pkg/content"
	"Murmur/internal/pkg/mongo"
	"Murmur/internal/repository"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	EditWindow        = 15 * time.Minute
	DeleteWindow      = 24 * time.Hour
	DefaultPageSize   = 50
	MaxPageSize       = 100
	DefaultThreadPage = 20

	ScopeEveryone = "everyone"
	ScopeMe       = "me"
)

// IMService 即时通讯服务接口定义
type IMService interface {
	CreateOrGetThread(ctx context.Context, userA, userB uint64) (*dto.ThreadDTO, bool, error)
	SendMessage(ctx context.Context, senderID uint64, threadID string, req *dto.SendMessageReq) (*dto.MessageDTO, error)
	EditMessage(ctx context.Context, messageID string, requester uint64, newText string) (*dto.MessageDTO, error)
	DeleteMessage(ctx context.Context, messageID string, requester uint64, scope string) error
	MarkSeen(ctx context.Context, threadID string, userID uint64) (int64, error)
	MarkDelivered(ctx context.Context, messageID string, userID uint64) error
	GetMessages(ctx context.Context, threadID string, userID uint64, cursor string, limit int) (*dto.MessagePageDTO, error)

	ListThreads(ctx context.Context, userID uint64, limit, skip int64) ([]*dto.ThreadDTO, error)
	SetPinned(ctx context.Context, threadID string, userID uint64, pinned bool) error
	SetArchived(ctx context.Context, threadID string, userID uint64, archived bool) error
	SetBlocked(ctx context.Context, threadID string, userID uint64, blocked bool) error
	SetBlockedBetween(ctx context.Context, blocker, blocked uint64, value bool) error
	DeleteThread(ctx context.Context, threadID string, userID uint64) error
	// ThreadPeer 校验成员身份并返回对方 ID
	ThreadPeer(ctx context.Context, threadID string, userID uint64) (uint64, error)
}

type imServiceImpl struct {
	threadRepo  mongo.ThreadRepo
	messageRepo mongo.MessageRepo
	userRepo    repository.UserRepo
	mediaRepo   repository.MediaTempRepo
	cipher      Cipher
	resolver    content.Resolver
	emitter     Emitter
	presence    PresenceChecker
	notifier    OfflineNotifier
	now         Clock
}

// IMOption 可选依赖
type IMOption func(*imServiceImpl)

// WithIMClock 注入时钟
func WithIMClock(now Clock) IMOption {
	return func(s *imServiceImpl) { s.now = now }
}

// WithOfflineNotifier 离线推送，默认不推送
func WithOfflineNotifier(n OfflineNotifier) IMOption {
	return func(s *imServiceImpl) { s.notifier = n }
}

// WithMediaRepo 发送媒体消息时把附件移出待清理列表
func WithMediaRepo(r repository.MediaTempRepo) IMOption {
	return func(s *imServiceImpl) { s.mediaRepo = r }
}

func NewIMService(
	threadRepo mongo.ThreadRepo,
	messageRepo mongo.MessageRepo,
	userRepo repository.UserRepo,
	cipher Cipher,
	resolver content.Resolver,
	emitter Emitter,
	presence PresenceChecker,
	opts ...IMOption,
) IMService {
	s := &imServiceImpl{
		threadRepo:  threadRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		cipher:      cipher,
		resolver:    resolver,
		emitter:     emitter,
		presence:    presence,
		notifier:    NewNoopNotifier(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrGetThread 按无序用户对查找或创建，并发调用收敛到同一个会话
func (s *imServiceImpl) CreateOrGetThread(ctx context.Context, userA, userB uint64) (*dto.ThreadDTO, bool, error) {
	if userA == 0 || userB == 0 {
		return nil, false, ErrParamInvalid
	}
	if userA == userB {
		return nil, false, ErrSelfConversation
	}
	peer, err := s.userRepo.GetUserById(ctx, userB)
	if err != nil {
		return nil, false, err
	}
	if !peer.Active() {
		return nil, false, ErrUserNotFound
	}

	thread, created, err := s.threadRepo.FindOrCreate(ctx, userA, userB, s.now())
	if err != nil {
		return nil, false, err
	}

	res := s.toThreadDTO(thread, userA)
	res.Peer = toUserBrief(peer)

	if created {
		log.InfoContext(ctx, "thread created", "thread_id", res.ID, "user_a", userA, "user_b", userB)
		s.emitter.ToUser(ctx, userA, consts.EventNewThread, res)
		s.emitter.ToUser(ctx, userB, consts.EventNewThread, s.toThreadDTO(thread, userB))
	}
	return res, created, nil
}

// SendMessage 发送消息
func (s *imServiceImpl) SendMessage(ctx context.Context, senderID uint64, threadID string, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	if req == nil {
		return nil, ErrEmptyMessage
	}
	thread, err := s.loadThread(ctx, threadID, senderID)
	if err != nil {
		return nil, err
	}
	if thread.Blocked {
		return nil, ErrThreadBlocked
	}
	receiverID := thread.Peer(senderID)

	body, err := s.buildBody(ctx, senderID, req)
	if err != nil {
		return nil, err
	}

	var replyTo *primitive.ObjectID
	if req.ReplyTo != "" {
		replyTo, err = s.checkReply(ctx, thread.ID, req.ReplyTo)
		if err != nil {
			return nil, err
		}
	}

	msg := &mongo.Message{
		ThreadID:   thread.ID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Kind:       body.Kind(),
		ReplyTo:    replyTo,
		Status:     model.StatusSent,
		CreatedAt:  s.now(),
	}
	if text := body.Text(); text != "" {
		if msg.Ciphertext, err = s.cipher.Encrypt(text); err != nil {
			return nil, fmt.Errorf("encrypt message: %w", err)
		}
	}
	switch b := body.(type) {
	case model.TextBody, model.ReactionBody:
	case model.MediaBody:
		msg.Media = b.Attachments
	case model.SharedBody:
		snap := b.Snapshot
		msg.Shared = &snap
	default:
		return nil, fmt.Errorf("unsupported message body %T", body)
	}

	if err = s.messageRepo.Insert(ctx, msg); err != nil {
		return nil, err
	}
	// 消息已落库，摘要更新失败不回滚，未读数在对方下次 MarkSeen 时归零
	if err = s.threadRepo.RecordMessage(ctx, thread.ID, receiverID, msg.ID, msg.CreatedAt); err != nil {
		log.ErrorContext(ctx, "record thread last message failed",
			"thread_id", thread.ID.Hex(), "message_id", msg.ID.Hex(), "err", err)
	}
	s.claimMedia(ctx, msg.Media)

	res := s.toMessageDTO(msg, body.Text())

	s.emitter.ToUser(ctx, receiverID, consts.EventNewMessage, res)
	s.emitter.ToUser(ctx, senderID, consts.EventMessageStatus, &dto.MessageStatusEvent{
		ThreadID:  res.ThreadID,
		MessageID: res.ID,
		Status:    string(model.StatusSent),
		UserID:    senderID,
	})

	if !s.presence.IsOnline(ctx, receiverID) {
		push := &dto.OfflinePush{
			ReceiverID: receiverID,
			SenderID:   senderID,
			ThreadID:   res.ThreadID,
			MessageID:  res.ID,
			Kind:       res.Kind,
			CreatedAt:  msg.CreatedAt,
		}
		if err := s.notifier.NotifyOffline(ctx, push); err != nil {
			log.WarnContext(ctx, "offline push failed", "receiver_id", receiverID, "err", err)
		}
	}
	return res, nil
}

// EditMessage 仅发送者、15 分钟内、文本消息
func (s *imServiceImpl) EditMessage(ctx context.Context, messageID string, requester uint64, newText string) (*dto.MessageDTO, error) {
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != requester {
		return nil, ErrNotSender
	}
	if s.now().Sub(msg.CreatedAt) >= EditWindow {
		return nil, ErrEditWindowExpired
	}
	if msg.Kind != model.KindText {
		return nil, ErrMessageNotText
	}
	body, err := model.NewTextBody(newText)
	if err != nil {
		return nil, ErrEmptyMessage
	}

	ciphertext, err := s.cipher.Encrypt(body.Text())
	if err != nil {
		return nil, fmt.Errorf("encrypt message: %w", err)
	}
	editedAt := s.now()
	if err = s.messageRepo.UpdateText(ctx, msg.ID, ciphertext, editedAt); err != nil {
		if errors.Is(err, mongo.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	msg.Ciphertext = ciphertext
	msg.Edited = true
	msg.EditedAt = &editedAt

	res := s.toMessageDTO(msg, body.Text())
	s.emitter.ToUser(ctx, msg.SenderID, consts.EventMessageEdited, res)
	s.emitter.ToUser(ctx, msg.ReceiverID, consts.EventMessageEdited, res)
	return res, nil
}

// DeleteMessage everyone: 发送者 24 小时内撤回；me: 任一成员仅对自己隐藏
func (s *imServiceImpl) DeleteMessage(ctx context.Context, messageID string, requester uint64, scope string) error {
	if scope != ScopeEveryone && scope != ScopeMe {
		return ErrInvalidScope
	}
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != requester && msg.ReceiverID != requester {
		return ErrNotParticipant
	}

	evt := &dto.MessageDeletedEvent{
		ThreadID:  msg.ThreadID.Hex(),
		MessageID: msg.ID.Hex(),
		Scope:     scope,
		DeletedBy: requester,
	}

	if scope == ScopeMe {
		if err = s.messageRepo.HideFor(ctx, msg.ID, requester); err != nil {
			return err
		}
		// 同步请求者的其它设备
		s.emitter.ToUser(ctx, requester, consts.EventMessageDeleted, evt)
		return nil
	}

	if msg.SenderID != requester {
		return ErrNotSender
	}
	now := s.now()
	if now.Sub(msg.CreatedAt) >= DeleteWindow {
		return ErrDeleteWindowExpired
	}
	if err = s.messageRepo.MarkDeleted(ctx, msg.ID, requester, now); err != nil {
		if errors.Is(err, mongo.ErrNotFound) {
			return ErrMessageNotFound
		}
		return err
	}
	s.emitter.ToUser(ctx, msg.SenderID, consts.EventMessageDeleted, evt)
	s.emitter.ToUser(ctx, msg.ReceiverID, consts.EventMessageDeleted, evt)
	return nil
}

// MarkSeen 批量已读并清零未读数；没有状态变化时不通知对方
func (s *imServiceImpl) MarkSeen(ctx context.Context, threadID string, userID uint64) (int64, error) {
	thread, err := s.loadThread(ctx, threadID, userID)
	if err != nil {
		return 0, err
	}
	changed, err := s.messageRepo.MarkThreadSeen(ctx, thread.ID, userID)
	if err != nil {
		return 0, err
	}
	if err = s.threadRepo.ResetUnread(ctx, thread.ID, userID); err != nil {
		return 0, err
	}
	if changed > 0 {
		s.emitter.ToUser(ctx, thread.Peer(userID), consts.EventMessageStatus, &dto.MessageStatusEvent{
			ThreadID: thread.ID.Hex(),
			Status:   string(model.StatusSeen),
			UserID:   userID,
			Count:    changed,
		})
	}
	return changed, nil
}

// MarkDelivered 接收方确认送达，已读消息不会回退
func (s *imServiceImpl) MarkDelivered(ctx context.Context, messageID string, userID uint64) error {
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.ReceiverID != userID {
		return ErrNotParticipant
	}
	changed, err := s.messageRepo.AdvanceStatus(ctx, msg.ID, model.StatusDelivered)
	if err != nil {
		return err
	}
	if changed {
		s.emitter.ToUser(ctx, msg.SenderID, consts.EventMessageStatus, &dto.MessageStatusEvent{
			ThreadID:  msg.ThreadID.Hex(),
			MessageID: msg.ID.Hex(),
			Status:    string(model.StatusDelivered),
			UserID:    userID,
		})
	}
	return nil
}

// GetMessages cursor 为开区间上界，返回其之前最新的一页，按时间正序
func (s *imServiceImpl) GetMessages(ctx context.Context, threadID string, userID uint64, cursor string, limit int) (*dto.MessagePageDTO, error) {
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit < 1 || limit > MaxPageSize {
		return nil, ErrInvalidLimit
	}
	var before *primitive.ObjectID
	if cursor != "" {
		oid, err := primitive.ObjectIDFromHex(cursor)
		if err != nil {
			return nil, ErrInvalidCursor
		}
		before = &oid
	}

	thread, err := s.loadThread(ctx, threadID, userID)
	if err != nil {
		return nil, err
	}

	list, err := s.messageRepo.ListPage(ctx, thread.ID, userID, before, int64(limit+1))
	if err != nil {
		return nil, err
	}
	page := &dto.MessagePageDTO{Messages: make([]*dto.MessageDTO, 0, limit)}
	if len(list) > limit {
		page.HasMore = true
		list = list[:limit]
	}
	// 仓储按 _id 倒序返回，这里翻转为正序
	for i := len(list) - 1; i >= 0; i-- {
		page.Messages = append(page.Messages, s.toMessageDTO(list[i], s.decrypt(ctx, list[i])))
	}
	if page.HasMore && len(list) > 0 {
		page.NextCursor = list[len(list)-1].ID.Hex()
	}
	return page, nil
}

func (s *imServiceImpl) ListThreads(ctx context.Context, userID uint64, limit, skip int64) ([]*dto.ThreadDTO, error) {
	if limit <= 0 {
		limit = DefaultThreadPage
	}
	if limit > MaxPageSize || skip < 0 {
		return nil, ErrInvalidLimit
	}
	threads, err := s.threadRepo.ListByUser(ctx, userID, limit, skip)
	if err != nil {
		return nil, err
	}

	peerIDs := make([]uint64, 0, len(threads))
	for _, t := range threads {
		peerIDs = append(peerIDs, t.Peer(userID))
	}
	peers := make(map[uint64]*dto.UserBriefDTO, len(peerIDs))
	users, err := s.userRepo.GetUserByIds(ctx, peerIDs)
	if err != nil {
		log.WarnContext(ctx, "load thread peers failed", "err", err)
	}
	for _, u := range users {
		peers[u.ID] = toUserBrief(u)
	}

	res := make([]*dto.ThreadDTO, 0, len(threads))
	for _, t := range threads {
		item := s.toThreadDTO(t, userID)
		item.Peer = peers[item.PeerID]
		res = append(res, item)
	}
	return res, nil
}

func (s *imServiceImpl) SetPinned(ctx context.Context, threadID string, userID uint64, pinned bool) error {
	return s.setFlag(ctx, threadID, userID, mongo.FlagPinned, pinned)
}

func (s *imServiceImpl) SetArchived(ctx context.Context, threadID string, userID uint64, archived bool) error {
	return s.setFlag(ctx, threadID, userID, mongo.FlagArchived, archived)
}

func (s *imServiceImpl) setFlag(ctx context.Context, threadID string, userID uint64, flag mongo.MemberFlag, value bool) error {
	thread, err := s.loadThread(ctx, threadID, userID)
	if err != nil {
		return err
	}
	return s.mapNotFound(s.threadRepo.SetMemberFlag(ctx, thread.ID, userID, flag, value), ErrThreadNotFound)
}

// SetBlocked 只有屏蔽者本人可以解除屏蔽
func (s *imServiceImpl) SetBlocked(ctx context.Context, threadID string, userID uint64, blocked bool) error {
	thread, err := s.loadThread(ctx, threadID, userID)
	if err != nil {
		return err
	}
	return s.applyBlock(ctx, thread, userID, blocked)
}

// SetBlockedBetween 由用户屏蔽关系变更驱动，两人之间没有会话时忽略
func (s *imServiceImpl) SetBlockedBetween(ctx context.Context, blocker, blocked uint64, value bool) error {
	if blocker == 0 || blocked == 0 || blocker == blocked {
		return ErrParamInvalid
	}
	thread, err := s.threadRepo.GetByPeerKey(ctx, mongo.PeerKey(blocker, blocked))
	if errors.Is(err, mongo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.applyBlock(ctx, thread, blocker, value)
}

func (s *imServiceImpl) applyBlock(ctx context.Context, thread *mongo.Thread, userID uint64, blocked bool) error {
	if thread.Blocked == blocked {
		return nil
	}
	if !blocked && thread.BlockedBy != 0 && thread.BlockedBy != userID {
		return ErrNotBlocker
	}
	if err := s.threadRepo.SetBlocked(ctx, thread.ID, blocked, userID); err != nil {
		return s.mapNotFound(err, ErrThreadNotFound)
	}
	evt := &dto.ThreadEvent{ThreadID: thread.ID.Hex(), UserID: userID, IsBlocked: blocked}
	for _, p := range thread.Participants {
		s.emitter.ToUser(ctx, p, consts.EventThreadBlocked, evt)
	}
	return nil
}

func (s *imServiceImpl) DeleteThread(ctx context.Context, threadID string, userID uint64) error {
	thread, err := s.loadThread(ctx, threadID, userID)
	if err != nil {
		return err
	}
	if err = s.threadRepo.MarkDeleted(ctx, thread.ID); err != nil {
		return s.mapNotFound(err, ErrThreadNotFound)
	}
	evt := &dto.ThreadEvent{ThreadID: thread.ID.Hex(), UserID: userID}
	for _, p := range thread.Participants {
		s.emitter.ToUser(ctx, p, consts.EventThreadDeleted, evt)
	}
	return nil
}

func (s *imServiceImpl) ThreadPeer(ctx context.Context, threadID string, userID uint64) (uint64, error) {
	thread, err := s.loadThread(ctx, threadID, userID)
	if err != nil {
		return 0, err
	}
	return thread.Peer(userID), nil
}

// loadThread 解析 ID、加载并校验成员身份
func (s *imServiceImpl) loadThread(ctx context.Context, threadID string, userID uint64) (*mongo.Thread, error) {
	oid, err := primitive.ObjectIDFromHex(threadID)
	if err != nil {
		return nil, ErrThreadNotFound
	}
	thread, err := s.threadRepo.GetByID(ctx, oid)
	if err != nil {
		return nil, s.mapNotFound(err, ErrThreadNotFound)
	}
	if !thread.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return thread, nil
}

// loadMessage 已撤回的消息视为不存在
func (s *imServiceImpl) loadMessage(ctx context.Context, messageID string) (*mongo.Message, error) {
	oid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return nil, ErrMessageNotFound
	}
	msg, err := s.messageRepo.GetByID(ctx, oid)
	if err != nil {
		return nil, s.mapNotFound(err, ErrMessageNotFound)
	}
	if msg.Deleted {
		return nil, ErrMessageNotFound
	}
	return msg, nil
}

func (s *imServiceImpl) checkReply(ctx context.Context, threadID primitive.ObjectID, replyTo string) (*primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(replyTo)
	if err != nil {
		return nil, ErrReplyNotFound
	}
	ref, err := s.messageRepo.GetByID(ctx, oid)
	if err != nil {
		return nil, s.mapNotFound(err, ErrReplyNotFound)
	}
	if ref.ThreadID != threadID {
		return nil, ErrReplyNotFound
	}
	return &oid, nil
}

// buildBody 把请求映射到唯一的消息类型：分享 > 媒体 > 表情回应 > 文本
// 附件只能引用发送者自己上传的对象
func (s *imServiceImpl) buildBody(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (model.Body, error) {
	text := strings.TrimSpace(req.Text)

	switch {
	case req.SharedContent != nil:
		item, err := s.resolver.Resolve(ctx, req.SharedContent.Type, req.SharedContent.ID)
		if errors.Is(err, content.ErrNotFound) {
			return nil, ErrContentNotFound
		}
		if err != nil {
			return nil, err
		}
		snap := model.SharedSnapshot{
			ContentID:  item.ID,
			Type:       item.Type,
			AuthorID:   item.AuthorID,
			AuthorName: item.AuthorName,
			Caption:    item.Caption,
			MediaURL:   item.MediaURL,
			Thumbnail:  item.Thumbnail,
		}
		body, err := model.NewSharedBody(text, snap)
		if err != nil {
			return nil, ErrParamInvalid
		}
		return body, nil

	case len(req.Media) > 0:
		attachments := make([]model.Attachment, 0, len(req.Media))
		for _, m := range req.Media {
			if m == nil || !OwnsMediaKey(senderID, m.URL) {
				return nil, ErrParamInvalid
			}
			if m.Thumbnail != "" && !OwnsMediaKey(senderID, m.Thumbnail) {
				return nil, ErrParamInvalid
			}
			attachments = append(attachments, model.Attachment{
				URL:       m.URL,
				Type:      model.MediaTypeOf(m.MimeType),
				MimeType:  m.MimeType,
				Size:      m.Size,
				Width:     m.Width,
				Height:    m.Height,
				Duration:  m.Duration,
				Thumbnail: m.Thumbnail,
			})
		}
		return model.NewMediaBody(text, attachments)

	case strings.TrimSpace(req.Reaction) != "":
		return model.NewReactionBody(req.Reaction)

	case text != "":
		return model.NewTextBody(req.Text)
	}
	return nil, ErrEmptyMessage
}

func (s *imServiceImpl) claimMedia(ctx context.Context, media []model.Attachment) {
	if s.mediaRepo == nil || len(media) == 0 {
		return
	}
	keys := make([]string, 0, len(media)*2)
	for _, m := range media {
		keys = append(keys, m.URL)
		if m.Thumbnail != "" {
			keys = append(keys, m.Thumbnail)
		}
	}
	if err := s.mediaRepo.Claim(ctx, keys...); err != nil {
		log.WarnContext(ctx, "claim chat media failed", "keys", keys, "err", err)
	}
}

// decrypt 单条解密失败不影响整页
func (s *imServiceImpl) decrypt(ctx context.Context, msg *mongo.Message) string {
	if msg.Ciphertext == "" {
		return ""
	}
	text, err := s.cipher.Decrypt(msg.Ciphertext)
	if err != nil {
		log.WarnContext(ctx, "decrypt message failed", "message_id", msg.ID.Hex(), "err", err)
		return consts.DecryptFailedPlaceholder
	}
	return text
}

func (s *imServiceImpl) mapNotFound(err, target error) error {
	if errors.Is(err, mongo.ErrNotFound) {
		return target
	}
	return err
}

func (s *imServiceImpl) toMessageDTO(msg *mongo.Message, text string) *dto.MessageDTO {
	res := &dto.MessageDTO{
		ID:         msg.ID.Hex(),
		ThreadID:   msg.ThreadID.Hex(),
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Kind:       string(msg.Kind),
		Text:       text,
		Status:     string(msg.Status),
		IsEdited:   msg.Edited,
		EditedAt:   msg.EditedAt,
		CreatedAt:  msg.CreatedAt,
	}
	if msg.ReplyTo != nil {
		res.ReplyTo = msg.ReplyTo.Hex()
	}
	for _, m := range msg.Media {
		item := &dto.AttachmentDTO{}
		_ = copier.Copy(item, &m)
		item.Type = string(m.Type)
		item.Token = s.mediaToken(m.URL)
		if m.Thumbnail != "" {
			item.ThumbnailToken = s.mediaToken(m.Thumbnail)
		}
		res.Media = append(res.Media, item)
	}
	if msg.Shared != nil {
		res.Shared = &dto.SharedContentDTO{}
		_ = copier.Copy(res.Shared, msg.Shared)
	}
	return res
}

func (s *imServiceImpl) mediaToken(key string) string {
	token, err := s.cipher.MintMediaToken(key)
	if err != nil {
		log.Warn("mint media token failed", "key", key, "err", err)
		return ""
	}
	return token
}

func (s *imServiceImpl) toThreadDTO(t *mongo.Thread, viewer uint64) *dto.ThreadDTO {
	member := t.Member(viewer)
	res := &dto.ThreadDTO{
		ID:            t.ID.Hex(),
		Participants:  t.Participants,
		PeerID:        t.Peer(viewer),
		LastMessageAt: t.LastMessageAt,
		UnreadCount:   member.Unread,
		IsArchived:    member.Archived,
		IsPinned:      member.Pinned,
		IsBlocked:     t.Blocked,
		BlockedBy:     t.BlockedBy,
		CreatedAt:     t.CreatedAt,
	}
	if t.LastMessageID != nil {
		res.LastMessageID = t.LastMessageID.Hex()
	}
	return res
}

func toUserBrief(u *model.User) *dto.UserBriefDTO {
	if u == nil {
		return nil
	}
	res := &dto.UserBriefDTO{}
	_ = copier.Copy(res, u)
	if res.Nickname == "" && u.Username != nil {
		res.Nickname = *u.Username
	}
	return res
}
