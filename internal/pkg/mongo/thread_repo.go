package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MemberFlag 可由成员自己修改的布尔状态
type MemberFlag string

const (
	FlagPinned   MemberFlag = "pinned"
	FlagArchived MemberFlag = "archived"
)

type ThreadRepo interface {
	Indexer
	// FindOrCreate 按 peerKey 查找未删除的会话，不存在则原子创建
	FindOrCreate(ctx context.Context, a, b uint64, now time.Time) (*Thread, bool, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*Thread, error)
	GetByPeerKey(ctx context.Context, peerKey string) (*Thread, error)
	ListByUser(ctx context.Context, userID uint64, limit, skip int64) ([]*Thread, error)
	// RecordMessage 接收方未读 +1 并更新最后一条消息，单次原子更新
	RecordMessage(ctx context.Context, threadID primitive.ObjectID, receiverID uint64, msgID primitive.ObjectID, at time.Time) error
	ResetUnread(ctx context.Context, threadID primitive.ObjectID, userID uint64) error
	SetMemberFlag(ctx context.Context, threadID primitive.ObjectID, userID uint64, flag MemberFlag, value bool) error
	SetBlocked(ctx context.Context, threadID primitive.ObjectID, blocked bool, blocker uint64) error
	MarkDeleted(ctx context.Context, threadID primitive.ObjectID) error
}

type threadRepoImpl struct {
	col *mongo.Collection
}

func NewThreadRepo(db *mongo.Database) ThreadRepo {
	return &threadRepoImpl{
		col: db.Collection("chat_thread"),
	}
}

// EnsureIndexes peer_key 在未删除会话中唯一，保证并发创建收敛到同一个会话
func (s *threadRepoImpl) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "peer_key", Value: 1}},
			Options: options.Index().
				SetName("uniq_peer_key_alive").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"deleted": false}),
		},
		{
			Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "deleted", Value: 1}, {Key: "last_message_at", Value: -1}},
			Options: options.Index().SetName("idx_participants_last"),
		},
	})
	return errors.Wrap(err, "ensure chat_thread indexes")
}

// findOrCreateDocs 只匹配存活会话，$setOnInsert 保证命中已有会话时不改动任何字段
func findOrCreateDocs(a, b uint64, newID primitive.ObjectID, now time.Time) (filter, update bson.M) {
	filter = aliveByPeerKey(PeerKey(a, b))
	update = bson.M{"$setOnInsert": bson.M{
		"_id":          newID,
		"participants": []uint64{a, b},
		"members": bson.M{
			MemberKey(a): MemberState{},
			MemberKey(b): MemberState{},
		},
		"blocked":    false,
		"created_at": now,
		"updated_at": now,
	}}
	return filter, update
}

func aliveByID(id primitive.ObjectID) bson.M {
	return bson.M{"_id": id, "deleted": false}
}

func aliveByPeerKey(peerKey string) bson.M {
	return bson.M{"peer_key": peerKey, "deleted": false}
}

// recordMessageUpdate 未读自增由服务端完成，并发发送不会丢计数
func recordMessageUpdate(receiverID uint64, msgID primitive.ObjectID, at time.Time) bson.M {
	return bson.M{
		"$inc": bson.M{"members." + MemberKey(receiverID) + ".unread": 1},
		"$set": bson.M{"last_message_id": msgID, "last_message_at": at, "updated_at": at},
	}
}

func blockedUpdate(blocked bool, blocker uint64, now time.Time) bson.M {
	if blocked {
		return bson.M{"$set": bson.M{"blocked": true, "blocked_by": blocker, "updated_at": now}}
	}
	return bson.M{"$set": bson.M{"blocked": false, "updated_at": now}, "$unset": bson.M{"blocked_by": ""}}
}

func (s *threadRepoImpl) FindOrCreate(ctx context.Context, a, b uint64, now time.Time) (*Thread, bool, error) {
	peerKey := PeerKey(a, b)
	newID := primitive.NewObjectID()
	filter, update := findOrCreateDocs(a, b, newID, now)
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var thread Thread
	err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&thread)
	if mongo.IsDuplicateKeyError(err) {
		// 并发 upsert 只有一个能插入成功，失败方读取胜者
		found, ferr := s.GetByPeerKey(ctx, peerKey)
		if ferr != nil {
			return nil, false, ferr
		}
		return found, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "upsert thread")
	}
	return &thread, thread.ID == newID, nil
}

func (s *threadRepoImpl) GetByID(ctx context.Context, id primitive.ObjectID) (*Thread, error) {
	var thread Thread
	err := s.col.FindOne(ctx, aliveByID(id)).Decode(&thread)
	if err != nil {
		return nil, notFound(err)
	}
	return &thread, nil
}

func (s *threadRepoImpl) GetByPeerKey(ctx context.Context, peerKey string) (*Thread, error) {
	var thread Thread
	err := s.col.FindOne(ctx, aliveByPeerKey(peerKey)).Decode(&thread)
	if err != nil {
		return nil, notFound(err)
	}
	return &thread, nil
}

// ListByUser 按最后消息时间倒序
func (s *threadRepoImpl) ListByUser(ctx context.Context, userID uint64, limit, skip int64) ([]*Thread, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "last_message_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit).
		SetSkip(skip)

	cursor, err := s.col.Find(ctx, bson.M{"participants": userID, "deleted": false}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find threads")
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var list []*Thread
	if err = cursor.All(ctx, &list); err != nil {
		return nil, errors.Wrap(err, "decode threads")
	}
	return list, nil
}

func (s *threadRepoImpl) RecordMessage(ctx context.Context, threadID primitive.ObjectID, receiverID uint64, msgID primitive.ObjectID, at time.Time) error {
	return s.updateOne(ctx, aliveByID(threadID), recordMessageUpdate(receiverID, msgID, at))
}

func (s *threadRepoImpl) ResetUnread(ctx context.Context, threadID primitive.ObjectID, userID uint64) error {
	update := bson.M{"$set": bson.M{"members." + MemberKey(userID) + ".unread": 0}}
	return s.updateOne(ctx, aliveByID(threadID), update)
}

func (s *threadRepoImpl) SetMemberFlag(ctx context.Context, threadID primitive.ObjectID, userID uint64, flag MemberFlag, value bool) error {
	update := bson.M{"$set": bson.M{"members." + MemberKey(userID) + "." + string(flag): value}}
	return s.updateOne(ctx, aliveByID(threadID), update)
}

func (s *threadRepoImpl) SetBlocked(ctx context.Context, threadID primitive.ObjectID, blocked bool, blocker uint64) error {
	return s.updateOne(ctx, aliveByID(threadID), blockedUpdate(blocked, blocker, time.Now()))
}

func (s *threadRepoImpl) MarkDeleted(ctx context.Context, threadID primitive.ObjectID) error {
	update := bson.M{"$set": bson.M{"deleted": true, "updated_at": time.Now()}}
	return s.updateOne(ctx, aliveByID(threadID), update)
}

func (s *threadRepoImpl) updateOne(ctx context.Context, filter, update bson.M) error {
	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return errors.Wrap(err, "update thread")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
