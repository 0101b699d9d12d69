package mongo

import (
	"Murmur/internal/model"
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageRepo interface {
	Indexer
	Insert(ctx context.Context, msg *Message) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*Message, error)
	UpdateText(ctx context.Context, id primitive.ObjectID, ciphertext string, editedAt time.Time) error
	MarkDeleted(ctx context.Context, id primitive.ObjectID, actor uint64, at time.Time) error
	HideFor(ctx context.Context, id primitive.ObjectID, userID uint64) error
	// AdvanceStatus 仅当当前状态是 to 的前驱时更新，返回是否发生变化
	AdvanceStatus(ctx context.Context, id primitive.ObjectID, to model.MessageStatus) (bool, error)
	// MarkThreadSeen 把发给 receiverID 的 sent/delivered 消息批量置为 seen
	MarkThreadSeen(ctx context.Context, threadID primitive.ObjectID, receiverID uint64) (int64, error)
	// ListPage before 为开区间上界，按 _id 倒序返回最多 limit 条
	ListPage(ctx context.Context, threadID primitive.ObjectID, viewer uint64, before *primitive.ObjectID, limit int64) ([]*Message, error)
}

type messageRepoImpl struct {
	col *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) MessageRepo {
	return &messageRepoImpl{
		col: db.Collection("chat_message"),
	}
}

func (s *messageRepoImpl) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "thread_id", Value: 1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("idx_thread_id"),
		},
		{
			Keys:    bson.D{{Key: "thread_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_thread_receiver_status"),
		},
	})
	return errors.Wrap(err, "ensure chat_message indexes")
}

// Insert 将消息存入 MongoDB，ID 为空时生成
func (s *messageRepoImpl) Insert(ctx context.Context, msg *Message) error {
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	_, err := s.col.InsertOne(ctx, msg)
	return errors.Wrap(err, "insert message")
}

func (s *messageRepoImpl) GetByID(ctx context.Context, id primitive.ObjectID) (*Message, error) {
	var msg Message
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&msg); err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}

func (s *messageRepoImpl) UpdateText(ctx context.Context, id primitive.ObjectID, ciphertext string, editedAt time.Time) error {
	update := bson.M{"$set": bson.M{"ciphertext": ciphertext, "edited": true, "edited_at": editedAt}}
	return s.updateOne(ctx, bson.M{"_id": id, "deleted": false}, update)
}

// MarkDeleted 撤回只打标记，密文保留
func (s *messageRepoImpl) MarkDeleted(ctx context.Context, id primitive.ObjectID, actor uint64, at time.Time) error {
	update := bson.M{"$set": bson.M{"deleted": true, "deleted_at": at, "deleted_by": actor}}
	return s.updateOne(ctx, bson.M{"_id": id, "deleted": false}, update)
}

func (s *messageRepoImpl) HideFor(ctx context.Context, id primitive.ObjectID, userID uint64) error {
	return s.updateOne(ctx, bson.M{"_id": id}, bson.M{"$addToSet": bson.M{"hidden_for": userID}})
}

func (s *messageRepoImpl) AdvanceStatus(ctx context.Context, id primitive.ObjectID, to model.MessageStatus) (bool, error) {
	filter := bson.M{"_id": id, "status": bson.M{"$in": to.Predecessors()}}
	res, err := s.col.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"status": to}})
	if err != nil {
		return false, errors.Wrap(err, "advance message status")
	}
	return res.ModifiedCount > 0, nil
}

func (s *messageRepoImpl) MarkThreadSeen(ctx context.Context, threadID primitive.ObjectID, receiverID uint64) (int64, error) {
	filter := bson.M{
		"thread_id":   threadID,
		"receiver_id": receiverID,
		"deleted":     false,
		"status":      bson.M{"$in": []model.MessageStatus{model.StatusSent, model.StatusDelivered}},
	}
	res, err := s.col.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"status": model.StatusSeen}})
	if err != nil {
		return 0, errors.Wrap(err, "mark thread seen")
	}
	return res.ModifiedCount, nil
}

func (s *messageRepoImpl) ListPage(ctx context.Context, threadID primitive.ObjectID, viewer uint64, before *primitive.ObjectID, limit int64) ([]*Message, error) {
	filter := bson.M{
		"thread_id":  threadID,
		"deleted":    false,
		"hidden_for": bson.M{"$ne": viewer},
	}
	if before != nil {
		filter["_id"] = bson.M{"$lt": *before}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(limit)

	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find messages")
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var messages []*Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, errors.Wrap(err, "decode messages")
	}
	return messages, nil
}

func (s *messageRepoImpl) updateOne(ctx context.Context, filter, update bson.M) error {
	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return errors.Wrap(err, "update message")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
