package service

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/model"
	"Murmur/internal/pkg/content"
	"Murmur/internal/pkg/mongo"
	"Murmur/internal/repository"
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ---- thread repo ----

type fakeThreadRepo struct {
	mu        sync.Mutex
	threads   map[primitive.ObjectID]*mongo.Thread
	recordErr error
}

func newFakeThreadRepo() *fakeThreadRepo {
	return &fakeThreadRepo{threads: make(map[primitive.ObjectID]*mongo.Thread)}
}

func cloneThread(t *mongo.Thread) *mongo.Thread {
	cp := *t
	cp.Participants = append([]uint64(nil), t.Participants...)
	cp.Members = make(map[string]*mongo.MemberState, len(t.Members))
	for k, v := range t.Members {
		m := *v
		cp.Members[k] = &m
	}
	return &cp
}

func (f *fakeThreadRepo) EnsureIndexes(context.Context) error { return nil }

func (f *fakeThreadRepo) FindOrCreate(_ context.Context, a, b uint64, now time.Time) (*mongo.Thread, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := mongo.PeerKey(a, b)
	for _, t := range f.threads {
		if t.PeerKey == key && !t.Deleted {
			return cloneThread(t), false, nil
		}
	}
	t := &mongo.Thread{
		ID:           primitive.NewObjectID(),
		PeerKey:      key,
		Participants: []uint64{a, b},
		Members: map[string]*mongo.MemberState{
			mongo.MemberKey(a): {},
			mongo.MemberKey(b): {},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.threads[t.ID] = t
	return cloneThread(t), true, nil
}

func (f *fakeThreadRepo) get(id primitive.ObjectID) (*mongo.Thread, error) {
	t, ok := f.threads[id]
	if !ok || t.Deleted {
		return nil, mongo.ErrNotFound
	}
	return t, nil
}

func (f *fakeThreadRepo) GetByID(_ context.Context, id primitive.ObjectID) (*mongo.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.get(id)
	if err != nil {
		return nil, err
	}
	return cloneThread(t), nil
}

func (f *fakeThreadRepo) GetByPeerKey(_ context.Context, peerKey string) (*mongo.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.threads {
		if t.PeerKey == peerKey && !t.Deleted {
			return cloneThread(t), nil
		}
	}
	return nil, mongo.ErrNotFound
}

func (f *fakeThreadRepo) ListByUser(_ context.Context, userID uint64, limit, skip int64) ([]*mongo.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*mongo.Thread
	for _, t := range f.threads {
		if !t.Deleted && t.IsParticipant(userID) {
			out = append(out, cloneThread(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) > 0
	})
	if skip >= int64(len(out)) {
		return nil, nil
	}
	out = out[skip:]
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeThreadRepo) RecordMessage(_ context.Context, threadID primitive.ObjectID, receiverID uint64, msgID primitive.ObjectID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	t, err := f.get(threadID)
	if err != nil {
		return err
	}
	t.Members[mongo.MemberKey(receiverID)].Unread++
	t.LastMessageID = &msgID
	t.LastMessageAt = &at
	return nil
}

func (f *fakeThreadRepo) ResetUnread(_ context.Context, threadID primitive.ObjectID, userID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.get(threadID)
	if err != nil {
		return err
	}
	t.Members[mongo.MemberKey(userID)].Unread = 0
	return nil
}

func (f *fakeThreadRepo) SetMemberFlag(_ context.Context, threadID primitive.ObjectID, userID uint64, flag mongo.MemberFlag, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.get(threadID)
	if err != nil {
		return err
	}
	m := t.Members[mongo.MemberKey(userID)]
	switch flag {
	case mongo.FlagPinned:
		m.Pinned = value
	case mongo.FlagArchived:
		m.Archived = value
	}
	return nil
}

func (f *fakeThreadRepo) SetBlocked(_ context.Context, threadID primitive.ObjectID, blocked bool, blocker uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.get(threadID)
	if err != nil {
		return err
	}
	t.Blocked = blocked
	t.BlockedBy = 0
	if blocked {
		t.BlockedBy = blocker
	}
	return nil
}

func (f *fakeThreadRepo) MarkDeleted(_ context.Context, threadID primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.get(threadID)
	if err != nil {
		return err
	}
	t.Deleted = true
	return nil
}

// unread 测试断言用
func (f *fakeThreadRepo) unread(threadID string, userID uint64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	oid, _ := primitive.ObjectIDFromHex(threadID)
	return f.threads[oid].Members[mongo.MemberKey(userID)].Unread
}

// ---- message repo ----

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[primitive.ObjectID]*mongo.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[primitive.ObjectID]*mongo.Message)}
}

func cloneMessage(m *mongo.Message) *mongo.Message {
	cp := *m
	cp.HiddenFor = append([]uint64(nil), m.HiddenFor...)
	return &cp
}

func (f *fakeMessageRepo) EnsureIndexes(context.Context) error { return nil }

func (f *fakeMessageRepo) Insert(_ context.Context, msg *mongo.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	f.messages[msg.ID] = cloneMessage(msg)
	return nil
}

func (f *fakeMessageRepo) GetByID(_ context.Context, id primitive.ObjectID) (*mongo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, mongo.ErrNotFound
	}
	return cloneMessage(m), nil
}

func (f *fakeMessageRepo) UpdateText(_ context.Context, id primitive.ObjectID, ciphertext string, editedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok || m.Deleted {
		return mongo.ErrNotFound
	}
	m.Ciphertext = ciphertext
	m.Edited = true
	m.EditedAt = &editedAt
	return nil
}

func (f *fakeMessageRepo) MarkDeleted(_ context.Context, id primitive.ObjectID, actor uint64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok || m.Deleted {
		return mongo.ErrNotFound
	}
	m.Deleted = true
	m.DeletedAt = &at
	m.DeletedBy = actor
	return nil
}

func (f *fakeMessageRepo) HideFor(_ context.Context, id primitive.ObjectID, userID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return mongo.ErrNotFound
	}
	if !m.HiddenForUser(userID) {
		m.HiddenFor = append(m.HiddenFor, userID)
	}
	return nil
}

func (f *fakeMessageRepo) AdvanceStatus(_ context.Context, id primitive.ObjectID, to model.MessageStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok || !m.Status.CanAdvanceTo(to) {
		return false, nil
	}
	m.Status = to
	return true, nil
}

func (f *fakeMessageRepo) MarkThreadSeen(_ context.Context, threadID primitive.ObjectID, receiverID uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.messages {
		if m.ThreadID != threadID || m.ReceiverID != receiverID || m.Deleted {
			continue
		}
		if m.Status == model.StatusSent || m.Status == model.StatusDelivered {
			m.Status = model.StatusSeen
			n++
		}
	}
	return n, nil
}

func (f *fakeMessageRepo) ListPage(_ context.Context, threadID primitive.ObjectID, viewer uint64, before *primitive.ObjectID, limit int64) ([]*mongo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*mongo.Message
	for _, m := range f.messages {
		if m.ThreadID != threadID || !m.VisibleTo(viewer) {
			continue
		}
		if before != nil && bytes.Compare(m.ID[:], before[:]) >= 0 {
			continue
		}
		out = append(out, cloneMessage(m))
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) > 0
	})
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMessageRepo) stored(id string) *mongo.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	oid, _ := primitive.ObjectIDFromHex(id)
	return cloneMessage(f.messages[oid])
}

func (f *fakeMessageRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeMessageRepo) mutate(id string, fn func(m *mongo.Message)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	oid, _ := primitive.ObjectIDFromHex(id)
	fn(f.messages[oid])
}

// ---- user repo ----

type fakeUserRepo struct {
	users map[uint64]*model.User
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	f := &fakeUserRepo{users: make(map[uint64]*model.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUserRepo) GetUserById(_ context.Context, id uint64) (*model.User, error) {
	return f.users[id], nil
}

func (f *fakeUserRepo) GetUserByIds(_ context.Context, ids []uint64) ([]*model.User, error) {
	var out []*model.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// ---- call repo ----

type fakeCallRepo struct {
	mu    sync.Mutex
	calls map[string]*model.CallSession
}

func newFakeCallRepo() *fakeCallRepo {
	return &fakeCallRepo{calls: make(map[string]*model.CallSession)}
}

func (f *fakeCallRepo) Create(_ context.Context, call *model.CallSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.calls[call.ID]; ok {
		return repository.ErrCallExists
	}
	cp := *call
	f.calls[call.ID] = &cp
	return nil
}

func (f *fakeCallRepo) GetByID(_ context.Context, id string) (*model.CallSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.calls[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCallRepo) Transition(_ context.Context, id string, to model.CallStatus, fields map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.calls[id]
	if !ok || !c.Status.CanTransitionTo(to) {
		return false, nil
	}
	c.Status = to
	for k, v := range fields {
		switch k {
		case "answered_at":
			t := v.(time.Time)
			c.AnsweredAt = &t
		case "ended_at":
			t := v.(time.Time)
			c.EndedAt = &t
		case "duration":
			c.Duration = v.(int)
		case "quality_avg_bitrate":
			c.Quality.AvgBitrate = v.(float64)
		case "quality_packet_loss":
			c.Quality.PacketLoss = v.(float64)
		case "quality_jitter":
			c.Quality.Jitter = v.(float64)
		case "quality_latency":
			c.Quality.Latency = v.(float64)
		case "end_reason":
			c.EndReason = v.(model.CallEndReason)
		}
	}
	return true, nil
}

func (f *fakeCallRepo) ListByUser(_ context.Context, userID uint64, limit, offset int) ([]*model.CallSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.CallSession
	for _, c := range f.calls {
		if c.IsParticipant(userID) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- media temp repo ----

type fakeMediaRepo struct {
	mu      sync.Mutex
	claimed []string
	tracked map[string]repository.MediaTempMetadata
}

func (f *fakeMediaRepo) Track(_ context.Context, key string, meta repository.MediaTempMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tracked == nil {
		f.tracked = map[string]repository.MediaTempMetadata{}
	}
	f.tracked[key] = meta
	return nil
}

func (f *fakeMediaRepo) Claim(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimed = append(f.claimed, keys...)
	for _, k := range keys {
		delete(f.tracked, k)
	}
	return nil
}

func (f *fakeMediaRepo) All(context.Context) (map[string]repository.MediaTempMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]repository.MediaTempMetadata, len(f.tracked))
	for k, v := range f.tracked {
		out[k] = v
	}
	return out, nil
}

func (f *fakeMediaRepo) Forget(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tracked, key)
	return nil
}

// ---- realtime collaborators ----

type emitted struct {
	UserID   uint64
	ThreadID string
	Event    string
	Data     interface{}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (e *recordingEmitter) ToUser(_ context.Context, userID uint64, event string, data interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{UserID: userID, Event: event, Data: data})
}

func (e *recordingEmitter) ToThread(_ context.Context, threadID string, event string, data interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{ThreadID: threadID, Event: event, Data: data})
}

func (e *recordingEmitter) Broadcast(_ context.Context, event string, data interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{Event: event, Data: data})
}

// to 发给 userID 的 event 事件载荷
func (e *recordingEmitter) to(userID uint64, event string) []interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []interface{}
	for _, ev := range e.events {
		if ev.UserID == userID && ev.Event == event {
			out = append(out, ev.Data)
		}
	}
	return out
}

func (e *recordingEmitter) reset() {
	e.mu.Lock()
	e.events = nil
	e.mu.Unlock()
}

type fakePresence struct {
	mu     sync.Mutex
	online map[uint64]bool
}

func newFakePresence(online ...uint64) *fakePresence {
	p := &fakePresence{online: make(map[uint64]bool)}
	for _, uid := range online {
		p.online[uid] = true
	}
	return p
}

func (p *fakePresence) IsOnline(_ context.Context, userID uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

func (p *fakePresence) set(userID uint64, online bool) {
	p.mu.Lock()
	p.online[userID] = online
	p.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	pushes []*dto.OfflinePush
}

func (n *recordingNotifier) NotifyOffline(_ context.Context, push *dto.OfflinePush) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes = append(n.pushes, push)
	return nil
}

type fakeResolver struct {
	items map[string]*content.Item
}

func (r *fakeResolver) Resolve(_ context.Context, contentType, id string) (*content.Item, error) {
	item, ok := r.items[contentType+"/"+id]
	if !ok || item.IsDeleted {
		return nil, content.ErrNotFound
	}
	return item, nil
}
