package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockCall struct {
	blocker, blocked uint64
	value            bool
}

type fakeApplier struct {
	mu    sync.Mutex
	calls []blockCall
	err   error
}

func (f *fakeApplier) SetBlockedBetween(_ context.Context, blocker, blocked uint64, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, blockCall{blocker, blocked, value})
	return nil
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (f *fakeSession) Context() context.Context { return f.ctx }

func (f *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, msg.Offset)
}

func canal(t *testing.T, m CanalMessage) *sarama.ConsumerMessage {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: "canal-user-blocks", Value: raw}
}

func TestBlockHandler_InsertAndDelete(t *testing.T) {
	applier := &fakeApplier{}
	h := NewBlockHandler(applier)
	ctx := context.Background()

	insert := canal(t, CanalMessage{Table: userBlocksTable, Type: INSERT, Data: []map[string]interface{}{
		{"blocker_id": "1", "blocked_id": "2", "is_deleted": "0"},
	}})
	require.NoError(t, h.logic(ctx, insert))

	del := canal(t, CanalMessage{Table: userBlocksTable, Type: DELETE, Data: []map[string]interface{}{
		{"blocker_id": "1", "blocked_id": "2"},
	}})
	require.NoError(t, h.logic(ctx, del))

	assert.Equal(t, []blockCall{{1, 2, true}, {1, 2, false}}, applier.calls)
}

func TestBlockHandler_UpdateOnlyWhenSoftDeleteChanges(t *testing.T) {
	applier := &fakeApplier{}
	h := NewBlockHandler(applier)

	msg := canal(t, CanalMessage{
		Table: userBlocksTable,
		Type:  UPDATE,
		Data: []map[string]interface{}{
			{"blocker_id": "3", "blocked_id": "4", "is_deleted": "1"},
			{"blocker_id": "5", "blocked_id": "6", "is_deleted": "0"},
		},
		Old: []map[string]interface{}{
			{"is_deleted": "0"},
			{"updated_at": "2024-01-01 00:00:00"},
		},
	})
	require.NoError(t, h.logic(context.Background(), msg))

	assert.Equal(t, []blockCall{{3, 4, false}}, applier.calls)
}

func TestBlockHandler_SkipsForeignTablesAndBadRows(t *testing.T) {
	applier := &fakeApplier{}
	h := NewBlockHandler(applier)
	ctx := context.Background()

	other := canal(t, CanalMessage{Table: "user_follows", Type: INSERT, Data: []map[string]interface{}{
		{"blocker_id": "1", "blocked_id": "2"},
	}})
	assert.ErrorIs(t, h.logic(ctx, other), ErrSkip)

	garbage := &sarama.ConsumerMessage{Value: []byte("not json")}
	assert.ErrorIs(t, h.logic(ctx, garbage), ErrSkip)

	missing := canal(t, CanalMessage{Table: userBlocksTable, Type: INSERT, Data: []map[string]interface{}{
		{"blocker_id": "1"},
	}})
	assert.NoError(t, h.logic(ctx, missing))

	assert.Empty(t, applier.calls)
}

func TestBlockHandler_PropagatesApplyError(t *testing.T) {
	boom := errors.New("mongo down")
	h := NewBlockHandler(&fakeApplier{err: boom})

	msg := canal(t, CanalMessage{Table: userBlocksTable, Type: INSERT, Data: []map[string]interface{}{
		{"blocker_id": "1", "blocked_id": "2"},
	}})
	assert.ErrorIs(t, h.logic(context.Background(), msg), boom)
}

func TestProcessBatch_RetriesThenMarksLast(t *testing.T) {
	session := &fakeSession{ctx: context.Background()}

	var mu sync.Mutex
	attempts := map[int64]int{}
	logic := func(_ context.Context, m *sarama.ConsumerMessage) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[m.Offset]++
		if m.Offset == 7 && attempts[m.Offset] < 3 {
			return errors.New("transient")
		}
		if m.Offset == 8 {
			return ErrSkip
		}
		return nil
	}

	batch := []*sarama.ConsumerMessage{{Offset: 6}, {Offset: 7}, {Offset: 8}}
	processBatch(session, batch, logic)

	assert.Equal(t, 1, attempts[6])
	assert.Equal(t, 3, attempts[7])
	assert.Equal(t, 1, attempts[8])
	assert.Equal(t, []int64{8}, session.marked)
}

func TestProcessBatch_CancelledSessionDoesNotCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	session := &fakeSession{ctx: ctx}

	logic := func(context.Context, *sarama.ConsumerMessage) error {
		cancel()
		return errors.New("shutting down")
	}
	processBatch(session, []*sarama.ConsumerMessage{{Offset: 1}}, logic)

	assert.Empty(t, session.marked)
}

func TestStrToUint64(t *testing.T) {
	assert.Equal(t, uint64(42), StrToUint64("42"))
	assert.Equal(t, uint64(42), StrToUint64(float64(42)))
	assert.Zero(t, StrToUint64("-1"))
	assert.Zero(t, StrToUint64(nil))
	assert.Zero(t, StrToUint64(true))
}
