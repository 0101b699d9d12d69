package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestFindOrCreateDocs_ConvergeOnPeerKey(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	id1, id2 := primitive.NewObjectID(), primitive.NewObjectID()

	f1, u1 := findOrCreateDocs(9, 2, id1, now)
	f2, _ := findOrCreateDocs(2, 9, id2, now)

	// 两个方向发起得到同一个过滤条件，唯一索引只允许其中一个插入
	assert.Equal(t, bson.M{"peer_key": "2_9", "deleted": false}, f1)
	assert.Equal(t, f1, f2)

	require.Len(t, u1, 1)
	insert, ok := u1["$setOnInsert"].(bson.M)
	require.True(t, ok, "命中已有会话时不能改写任何字段")
	assert.Equal(t, id1, insert["_id"])
	assert.NotContains(t, insert, "peer_key")
	assert.NotContains(t, insert, "deleted")
}

func TestFindOrCreateDocs_InsertedDocument(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	id := primitive.NewObjectID()
	filter, update := findOrCreateDocs(3, 1, id, now)

	// upsert 插入的文档 = 过滤条件中的等值字段 + $setOnInsert
	doc := bson.M{}
	for k, v := range filter {
		doc[k] = v
	}
	for k, v := range update["$setOnInsert"].(bson.M) {
		doc[k] = v
	}
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)

	var thread Thread
	require.NoError(t, bson.Unmarshal(raw, &thread))
	assert.Equal(t, id, thread.ID)
	assert.Equal(t, "1_3", thread.PeerKey)
	assert.Equal(t, []uint64{3, 1}, thread.Participants)
	assert.False(t, thread.Deleted)
	assert.False(t, thread.Blocked)
	require.Contains(t, thread.Members, "1")
	require.Contains(t, thread.Members, "3")
	assert.Equal(t, MemberState{}, *thread.Members["1"])
	assert.True(t, now.Equal(thread.CreatedAt))
	assert.Nil(t, thread.LastMessageID)
}

func TestRecordMessageUpdate_AtomicIncrement(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	msgID := primitive.NewObjectID()

	assert.Equal(t, bson.M{
		"$inc": bson.M{"members.42.unread": 1},
		"$set": bson.M{"last_message_id": msgID, "last_message_at": at, "updated_at": at},
	}, recordMessageUpdate(42, msgID, at))
}

func TestAliveFilters_ExcludeDeleted(t *testing.T) {
	id := primitive.NewObjectID()
	assert.Equal(t, bson.M{"_id": id, "deleted": false}, aliveByID(id))
	assert.Equal(t, bson.M{"peer_key": "1_2", "deleted": false}, aliveByPeerKey("1_2"))
}

func TestBlockedUpdate(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, bson.M{"$set": bson.M{"blocked": true, "blocked_by": uint64(7), "updated_at": now}}, blockedUpdate(true, 7, now))
	assert.Equal(t, bson.M{
		"$set":   bson.M{"blocked": false, "updated_at": now},
		"$unset": bson.M{"blocked_by": ""},
	}, blockedUpdate(false, 7, now))
}
