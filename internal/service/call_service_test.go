package service

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/model"
	"Murmur/internal/pkg/bus"
	"Murmur/internal/pkg/consts"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callFixture struct {
	*imFixture
	calls *fakeCallRepo
	store *bus.MemoryStore
	svc   CallService
}

func newCallFixture(t *testing.T) *callFixture {
	t.Helper()
	im := newIMFixture(t)
	f := &callFixture{
		imFixture: im,
		calls:     newFakeCallRepo(),
		store:     bus.NewMemoryStore(im.clock.Now),
	}
	f.svc = NewCallService(f.calls, im.users, im.svc, f.store, im.emitter, im.presence,
		func() (string, error) { return "session-key", nil },
		WithCallClock(im.clock.Now),
	)
	return f
}

func (f *callFixture) ring(t *testing.T, caller, receiver uint64) *dto.CallDTO {
	t.Helper()
	call, err := f.svc.RequestCall(context.Background(), caller, receiver, string(model.CallVideo))
	require.NoError(t, err)
	require.Equal(t, string(model.CallRinging), call.Status)
	return call
}

func TestRequestCall_OfflineReceiver(t *testing.T) {
	f := newCallFixture(t)
	f.presence.set(bob, false)

	call, err := f.svc.RequestCall(context.Background(), alice, bob, "audio")
	require.NoError(t, err)
	assert.Equal(t, string(model.CallFailed), call.Status)
	assert.Equal(t, string(model.EndOffline), call.EndReason)
	assert.NotNil(t, call.EndedAt)

	failed := f.emitter.to(alice, consts.EventCallFailed)
	require.Len(t, failed, 1)
	evt := failed[0].(*dto.CallFailedEvent)
	assert.Equal(t, FailReasonOffline, evt.Reason)
	assert.Equal(t, call.ID, evt.CallID)
	assert.Empty(t, f.emitter.to(bob, consts.EventIncomingCall))

	for _, c := range f.calls.calls {
		assert.True(t, c.Status.Terminal(), "call %s left in %s", c.ID, c.Status)
	}
}

func TestRequestCall_Rings(t *testing.T) {
	f := newCallFixture(t)

	call := f.ring(t, alice, bob)
	assert.Equal(t, "session-key", call.SessionKey)
	assert.NotEmpty(t, call.ThreadID)

	incoming := f.emitter.to(bob, consts.EventIncomingCall)
	require.Len(t, incoming, 1)
	evt := incoming[0].(*dto.IncomingCallEvent)
	assert.Equal(t, call.ID, evt.CallID)
	assert.Equal(t, "session-key", evt.SessionKey)
	assert.Equal(t, alice, evt.Caller.ID)
	assert.Equal(t, "video", evt.Type)

	stored, err := f.calls.GetByID(context.Background(), call.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CallRinging, stored.Status)
}

func TestRequestCall_Rejects(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestCall(ctx, alice, alice, "audio")
	assert.ErrorIs(t, err, ErrSelfCall)

	_, err = f.svc.RequestCall(ctx, alice, bob, "hologram")
	assert.ErrorIs(t, err, ErrInvalidCallType)

	_, err = f.svc.RequestCall(ctx, alice, 999, "audio")
	assert.ErrorIs(t, err, ErrUserNotFound)

	threadID := f.thread(t, alice, bob)
	require.NoError(t, f.imFixture.svc.SetBlocked(ctx, threadID, bob, true))
	_, err = f.svc.RequestCall(ctx, alice, bob, "audio")
	assert.ErrorIs(t, err, ErrThreadBlocked)

	assert.Empty(t, f.calls.calls)
}

func TestRequestCall_Busy(t *testing.T) {
	f := newCallFixture(t)
	f.ring(t, alice, bob)

	call, err := f.svc.RequestCall(context.Background(), carol, bob, "audio")
	require.NoError(t, err)
	assert.Equal(t, string(model.CallFailed), call.Status)
	assert.Equal(t, string(model.EndBusy), call.EndReason)

	failed := f.emitter.to(carol, consts.EventCallFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, FailReasonBusy, failed[0].(*dto.CallFailedEvent).Reason)

	_, found, err := f.store.Get(context.Background(), lineKey(carol))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRequestCall_StoreOutageDoesNotBlockCalls(t *testing.T) {
	f := newCallFixture(t)
	f.store.SetOffline(true)

	f.ring(t, alice, bob)
	f.ring(t, carol, bob)
}

func TestAcceptAndEndCall(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()
	call := f.ring(t, alice, bob)

	_, err := f.svc.AcceptCall(ctx, call.ID, alice)
	assert.ErrorIs(t, err, ErrCallNotReceiver)

	f.clock.Advance(5 * time.Second)
	accepted, err := f.svc.AcceptCall(ctx, call.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, string(model.CallAnswered), accepted.Status)
	assert.Empty(t, accepted.SessionKey)
	assert.Len(t, f.emitter.to(alice, consts.EventCallAccepted), 1)

	again, err := f.svc.AcceptCall(ctx, call.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, string(model.CallAnswered), again.Status)
	assert.Len(t, f.emitter.to(alice, consts.EventCallAccepted), 1)

	f.clock.Advance(90 * time.Second)
	quality := &dto.CallQualityDTO{AvgBitrate: 512, PacketLoss: 1.5, Jitter: 12, Latency: 80}
	ended, err := f.svc.EndCall(ctx, call.ID, alice, &dto.EndCallReq{Quality: quality})
	require.NoError(t, err)
	assert.Equal(t, string(model.CallEnded), ended.Status)
	assert.Equal(t, 90, ended.Duration)
	assert.Equal(t, quality, ended.Quality)
	stored, err := f.calls.GetByID(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CallQuality{AvgBitrate: 512, PacketLoss: 1.5, Jitter: 12, Latency: 80}, stored.Quality)
	assert.Equal(t, string(model.EndNormal), ended.EndReason)
	assert.Len(t, f.emitter.to(alice, consts.EventCallEnded), 1)
	assert.Len(t, f.emitter.to(bob, consts.EventCallEnded), 1)

	f.clock.Advance(time.Minute)
	second, err := f.svc.EndCall(ctx, call.ID, bob, nil)
	require.NoError(t, err)
	assert.Equal(t, 90, second.Duration)
	assert.Equal(t, quality, second.Quality)
	assert.Len(t, f.emitter.to(bob, consts.EventCallEnded), 1)

	// 结束后双方可以再次通话
	f.ring(t, bob, alice)
}

func TestEndCall_SuppliedDurationAndOutsider(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()
	call := f.ring(t, alice, bob)

	_, err := f.svc.EndCall(ctx, call.ID, carol, nil)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = f.svc.EndCall(ctx, "not-a-uuid", alice, nil)
	assert.ErrorIs(t, err, ErrCallNotFound)

	_, err = f.svc.EndCall(ctx, call.ID, alice, &dto.EndCallReq{Quality: &dto.CallQualityDTO{PacketLoss: 120}})
	assert.ErrorIs(t, err, ErrParamInvalid)

	d := 42
	ended, err := f.svc.EndCall(ctx, call.ID, bob, &dto.EndCallReq{Duration: &d, Reason: "network_error"})
	require.NoError(t, err)
	assert.Equal(t, 42, ended.Duration)
	assert.Equal(t, string(model.EndNetworkError), ended.EndReason)
}

func TestEndCall_NeverAnsweredHasZeroDuration(t *testing.T) {
	f := newCallFixture(t)
	call := f.ring(t, alice, bob)

	f.clock.Advance(30 * time.Second)
	ended, err := f.svc.EndCall(context.Background(), call.ID, alice, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, ended.Duration)
}

func TestRejectCall(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()
	call := f.ring(t, alice, bob)

	rejected, err := f.svc.RejectCall(ctx, call.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, string(model.CallRejected), rejected.Status)
	assert.Equal(t, string(model.EndDeclined), rejected.EndReason)
	assert.Len(t, f.emitter.to(alice, consts.EventCallRejected), 1)

	_, err = f.svc.AcceptCall(ctx, call.ID, bob)
	assert.ErrorIs(t, err, ErrCallStateInvalid)

	f.ring(t, carol, bob)
}

func TestMarkMissed(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()
	call := f.ring(t, alice, bob)

	missed, err := f.svc.MarkMissed(ctx, call.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, string(model.CallMissed), missed.Status)

	ended := f.emitter.to(bob, consts.EventCallEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, string(model.EndNoAnswer), ended[0].(*dto.CallEvent).Reason)
}

func TestRelay(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()
	payload := map[string]interface{}{"sdp": "v=0", "type": "offer"}

	require.NoError(t, f.svc.Relay(ctx, alice, consts.EventOffer, &dto.SignalReq{CallID: "c1", To: bob, Payload: payload}))
	relayed := f.emitter.to(bob, consts.EventOffer)
	require.Len(t, relayed, 1)
	sig := relayed[0].(*dto.SignalEvent)
	assert.Equal(t, alice, sig.From)
	assert.Equal(t, payload, sig.Payload)

	f.presence.set(bob, false)
	require.NoError(t, f.svc.Relay(ctx, alice, consts.EventIceCandidate, &dto.SignalReq{To: bob, Payload: "cand"}))
	failed := f.emitter.to(alice, consts.EventCallFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, FailReasonUnreachable, failed[0].(*dto.CallFailedEvent).Reason)

	assert.ErrorIs(t, f.svc.Relay(ctx, alice, consts.EventSendMessage, &dto.SignalReq{To: bob}), ErrParamInvalid)
	assert.ErrorIs(t, f.svc.Relay(ctx, alice, consts.EventAnswer, &dto.SignalReq{To: alice}), ErrParamInvalid)
}

func TestListCalls(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()
	first := f.ring(t, alice, bob)
	_, err := f.svc.EndCall(ctx, first.ID, alice, nil)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	f.ring(t, carol, alice)

	list, err := f.svc.ListCalls(ctx, alice, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, carol, list[0].CallerID)
	for _, c := range list {
		assert.Empty(t, c.SessionKey)
	}

	got, err := f.svc.GetCall(ctx, first.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, string(model.CallEnded), got.Status)

	_, err = f.svc.GetCall(ctx, first.ID, carol)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = f.svc.ListCalls(ctx, alice, 101, 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}
