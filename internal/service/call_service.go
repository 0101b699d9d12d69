package service

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/model"
	"Murmur/internal/pkg/bus"
	"Murmur/internal/pkg/consts"
	"Murmur/internal/repository"
	"context"
	"fmt"
	log "log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	// ActiveCallTTL 占线标记的兜底过期时间，正常情况下在通话结束时释放
	ActiveCallTTL = 2 * time.Hour

	defaultCallPage = 20

	FailReasonOffline     = "offline"
	FailReasonBusy        = "busy"
	FailReasonUnreachable = "unreachable"
)

// CallService 音视频通话信令服务
type CallService interface {
	RequestCall(ctx context.Context, callerID, receiverID uint64, callType string) (*dto.CallDTO, error)
	AcceptCall(ctx context.Context, callID string, userID uint64) (*dto.CallDTO, error)
	RejectCall(ctx context.Context, callID string, userID uint64) (*dto.CallDTO, error)
	MarkMissed(ctx context.Context, callID string, userID uint64) (*dto.CallDTO, error)
	EndCall(ctx context.Context, callID string, userID uint64, req *dto.EndCallReq) (*dto.CallDTO, error)
	// Relay 原样转发 offer/answer/iceCandidate，不保存也不校验内容
	Relay(ctx context.Context, from uint64, event string, req *dto.SignalReq) error
	GetCall(ctx context.Context, callID string, userID uint64) (*dto.CallDTO, error)
	ListCalls(ctx context.Context, userID uint64, limit, offset int) ([]*dto.CallDTO, error)
}

type callServiceImpl struct {
	callRepo   repository.CallRepo
	userRepo   repository.UserRepo
	imService  IMService
	store      bus.Store
	emitter    Emitter
	presence   PresenceChecker
	sessionKey func() (string, error)
	now        Clock
}

// CallOption 可选依赖
type CallOption func(*callServiceImpl)

func WithCallClock(now Clock) CallOption {
	return func(s *callServiceImpl) { s.now = now }
}

func NewCallService(
	callRepo repository.CallRepo,
	userRepo repository.UserRepo,
	imService IMService,
	store bus.Store,
	emitter Emitter,
	presence PresenceChecker,
	sessionKey func() (string, error),
	opts ...CallOption,
) CallService {
	s := &callServiceImpl{
		callRepo:   callRepo,
		userRepo:   userRepo,
		imService:  imService,
		store:      store,
		emitter:    emitter,
		presence:   presence,
		sessionKey: sessionKey,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestCall 对方离线或占线时返回 failed 状态的记录并推送 callFailed，不作为错误返回
func (s *callServiceImpl) RequestCall(ctx context.Context, callerID, receiverID uint64, callType string) (*dto.CallDTO, error) {
	if callerID == 0 || receiverID == 0 {
		return nil, ErrParamInvalid
	}
	if callerID == receiverID {
		return nil, ErrSelfCall
	}
	typ := model.CallType(callType)
	if !typ.Valid() {
		return nil, ErrInvalidCallType
	}

	caller, err := s.userRepo.GetUserById(ctx, callerID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.userRepo.GetUserById(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	if !receiver.Active() {
		return nil, ErrUserNotFound
	}

	thread, _, err := s.imService.CreateOrGetThread(ctx, callerID, receiverID)
	if err != nil {
		return nil, err
	}
	if thread.IsBlocked {
		return nil, ErrThreadBlocked
	}

	key, err := s.sessionKey()
	if err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}
	call := &model.CallSession{
		ID:         uuid.NewString(),
		Type:       typ,
		CallerID:   callerID,
		ReceiverID: receiverID,
		ThreadID:   thread.ID,
		Status:     model.CallInitiated,
		SessionKey: key,
		StartedAt:  s.now(),
	}
	if err = s.callRepo.Create(ctx, call); err != nil {
		return nil, err
	}

	if !s.presence.IsOnline(ctx, receiverID) {
		return s.fail(ctx, call, model.EndOffline, FailReasonOffline, "User is offline")
	}
	if !s.acquireLines(ctx, call) {
		return s.fail(ctx, call, model.EndBusy, FailReasonBusy, "User is busy")
	}

	s.emitter.ToUser(ctx, receiverID, consts.EventIncomingCall, &dto.IncomingCallEvent{
		CallID:     call.ID,
		ThreadID:   call.ThreadID,
		Type:       string(call.Type),
		Caller:     toUserBrief(caller),
		SessionKey: call.SessionKey,
	})

	ok, err := s.callRepo.Transition(ctx, call.ID, model.CallRinging, nil)
	if err != nil {
		log.WarnContext(ctx, "mark call ringing failed", "call_id", call.ID, "err", err)
	} else if ok {
		call.Status = model.CallRinging
	}
	log.InfoContext(ctx, "call requested", "call_id", call.ID, "caller_id", callerID, "receiver_id", receiverID, "type", callType)
	return toCallDTO(call, true), nil
}

func (s *callServiceImpl) fail(ctx context.Context, call *model.CallSession, reason model.CallEndReason, failReason, message string) (*dto.CallDTO, error) {
	endedAt := s.now()
	ok, err := s.callRepo.Transition(ctx, call.ID, model.CallFailed, map[string]interface{}{
		"end_reason": reason,
		"ended_at":   endedAt,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCallStateInvalid
	}
	call.Status = model.CallFailed
	call.EndReason = reason
	call.EndedAt = &endedAt

	s.emitter.ToUser(ctx, call.CallerID, consts.EventCallFailed, &dto.CallFailedEvent{
		CallID:  call.ID,
		Reason:  failReason,
		Message: message,
	})
	log.InfoContext(ctx, "call failed", "call_id", call.ID, "reason", failReason)
	return toCallDTO(call, false), nil
}

// AcceptCall 已接通时重复调用直接返回
func (s *callServiceImpl) AcceptCall(ctx context.Context, callID string, userID uint64) (*dto.CallDTO, error) {
	call, err := s.loadCall(ctx, callID, userID)
	if err != nil {
		return nil, err
	}
	if call.ReceiverID != userID {
		return nil, ErrCallNotReceiver
	}
	if call.Status == model.CallAnswered {
		return toCallDTO(call, false), nil
	}

	answeredAt := s.now()
	if err = s.transition(ctx, call, model.CallAnswered, map[string]interface{}{"answered_at": answeredAt}); err != nil {
		return nil, err
	}
	call.AnsweredAt = &answeredAt

	s.emitter.ToUser(ctx, call.CallerID, consts.EventCallAccepted, &dto.CallEvent{
		CallID: call.ID,
		UserID: userID,
		Status: string(call.Status),
	})
	return toCallDTO(call, false), nil
}

func (s *callServiceImpl) RejectCall(ctx context.Context, callID string, userID uint64) (*dto.CallDTO, error) {
	call, err := s.loadCall(ctx, callID, userID)
	if err != nil {
		return nil, err
	}
	if call.ReceiverID != userID {
		return nil, ErrCallNotReceiver
	}
	if call.Status == model.CallRejected {
		return toCallDTO(call, false), nil
	}

	endedAt := s.now()
	err = s.transition(ctx, call, model.CallRejected, map[string]interface{}{
		"end_reason": model.EndDeclined,
		"ended_at":   endedAt,
	})
	if err != nil {
		return nil, err
	}
	call.EndReason = model.EndDeclined
	call.EndedAt = &endedAt
	s.releaseLines(ctx, call)

	s.emitter.ToUser(ctx, call.CallerID, consts.EventCallRejected, &dto.CallEvent{
		CallID: call.ID,
		UserID: userID,
		Status: string(call.Status),
		Reason: string(model.EndDeclined),
	})
	return toCallDTO(call, false), nil
}

// MarkMissed 振铃无人接听，由任一方客户端上报
func (s *callServiceImpl) MarkMissed(ctx context.Context, callID string, userID uint64) (*dto.CallDTO, error) {
	call, err := s.loadCall(ctx, callID, userID)
	if err != nil {
		return nil, err
	}
	if call.Status == model.CallMissed {
		return toCallDTO(call, false), nil
	}

	endedAt := s.now()
	err = s.transition(ctx, call, model.CallMissed, map[string]interface{}{
		"end_reason": model.EndNoAnswer,
		"ended_at":   endedAt,
	})
	if err != nil {
		return nil, err
	}
	call.EndReason = model.EndNoAnswer
	call.EndedAt = &endedAt
	s.releaseLines(ctx, call)

	s.emitter.ToUser(ctx, call.Peer(userID), consts.EventCallEnded, &dto.CallEvent{
		CallID: call.ID,
		UserID: userID,
		Status: string(call.Status),
		Reason: string(model.EndNoAnswer),
	})
	return toCallDTO(call, false), nil
}

// EndCall 幂等：已是终态时返回当前记录且不再通知
func (s *callServiceImpl) EndCall(ctx context.Context, callID string, userID uint64, req *dto.EndCallReq) (*dto.CallDTO, error) {
	if req == nil {
		req = &dto.EndCallReq{}
	}
	reason := model.EndNormal
	if req.Reason != "" {
		reason = model.CallEndReason(req.Reason)
		if !reason.Valid() {
			return nil, ErrParamInvalid
		}
	}
	if req.Duration != nil && *req.Duration < 0 {
		return nil, ErrParamInvalid
	}
	if q := req.Quality; q != nil && (q.AvgBitrate < 0 || q.PacketLoss < 0 || q.PacketLoss > 100 || q.Jitter < 0 || q.Latency < 0) {
		return nil, ErrParamInvalid
	}

	call, err := s.loadCall(ctx, callID, userID)
	if err != nil {
		return nil, err
	}
	if call.Status.Terminal() {
		return toCallDTO(call, false), nil
	}

	endedAt := s.now()
	duration := 0
	switch {
	case req.Duration != nil:
		duration = *req.Duration
	case call.AnsweredAt != nil:
		duration = int(endedAt.Sub(*call.AnsweredAt) / time.Second)
	}

	fields := map[string]interface{}{
		"ended_at":   endedAt,
		"duration":   duration,
		"end_reason": reason,
	}
	var quality model.CallQuality
	if req.Quality != nil {
		quality = model.CallQuality{
			AvgBitrate: req.Quality.AvgBitrate,
			PacketLoss: req.Quality.PacketLoss,
			Jitter:     req.Quality.Jitter,
			Latency:    req.Quality.Latency,
		}
		for col, v := range quality.Columns() {
			fields[col] = v
		}
	}

	ok, err := s.callRepo.Transition(ctx, call.ID, model.CallEnded, fields)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 并发结束，以库里的记录为准
		latest, err := s.callRepo.GetByID(ctx, call.ID)
		if err != nil {
			return nil, err
		}
		if latest != nil && latest.Status.Terminal() {
			return toCallDTO(latest, false), nil
		}
		return nil, ErrCallStateInvalid
	}
	call.Status = model.CallEnded
	call.EndedAt = &endedAt
	call.Duration = duration
	call.Quality = quality
	call.EndReason = reason
	s.releaseLines(ctx, call)

	evt := &dto.CallEvent{
		CallID:   call.ID,
		UserID:   userID,
		Status:   string(call.Status),
		Reason:   string(reason),
		Duration: duration,
	}
	s.emitter.ToUser(ctx, call.CallerID, consts.EventCallEnded, evt)
	s.emitter.ToUser(ctx, call.ReceiverID, consts.EventCallEnded, evt)
	log.InfoContext(ctx, "call ended", "call_id", call.ID, "duration", duration, "reason", reason)
	return toCallDTO(call, false), nil
}

func (s *callServiceImpl) Relay(ctx context.Context, from uint64, event string, req *dto.SignalReq) error {
	switch event {
	case consts.EventOffer, consts.EventAnswer, consts.EventIceCandidate:
	default:
		return ErrParamInvalid
	}
	if req == nil || req.To == 0 || req.To == from {
		return ErrParamInvalid
	}
	if !s.presence.IsOnline(ctx, req.To) {
		s.emitter.ToUser(ctx, from, consts.EventCallFailed, &dto.CallFailedEvent{
			CallID:  req.CallID,
			Reason:  FailReasonUnreachable,
			Message: "User is not connected",
		})
		return nil
	}
	s.emitter.ToUser(ctx, req.To, event, &dto.SignalEvent{
		CallID:  req.CallID,
		From:    from,
		Payload: req.Payload,
	})
	return nil
}

func (s *callServiceImpl) GetCall(ctx context.Context, callID string, userID uint64) (*dto.CallDTO, error) {
	call, err := s.loadCall(ctx, callID, userID)
	if err != nil {
		return nil, err
	}
	return toCallDTO(call, false), nil
}

func (s *callServiceImpl) ListCalls(ctx context.Context, userID uint64, limit, offset int) ([]*dto.CallDTO, error) {
	if limit == 0 {
		limit = defaultCallPage
	}
	if limit < 0 || limit > MaxPageSize || offset < 0 {
		return nil, ErrInvalidLimit
	}
	calls, err := s.callRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	res := make([]*dto.CallDTO, 0, len(calls))
	for _, c := range calls {
		res = append(res, toCallDTO(c, false))
	}
	return res, nil
}

func (s *callServiceImpl) loadCall(ctx context.Context, callID string, userID uint64) (*model.CallSession, error) {
	if _, err := uuid.Parse(callID); err != nil {
		return nil, ErrCallNotFound
	}
	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call == nil {
		return nil, ErrCallNotFound
	}
	if !call.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return call, nil
}

// transition 条件更新失败说明状态已被并发修改
func (s *callServiceImpl) transition(ctx context.Context, call *model.CallSession, to model.CallStatus, fields map[string]interface{}) error {
	if !call.Status.CanTransitionTo(to) {
		return ErrCallStateInvalid
	}
	ok, err := s.callRepo.Transition(ctx, call.ID, to, fields)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCallStateInvalid
	}
	call.Status = to
	return nil
}

func lineKey(userID uint64) string {
	return consts.CallActiveKey + strconv.FormatUint(userID, 10)
}

// acquireLines 为双方加占线标记，任一方已在通话中返回 false；共享存储不可用时放行
func (s *callServiceImpl) acquireLines(ctx context.Context, call *model.CallSession) bool {
	if s.store == nil {
		return true
	}
	ok, err := s.store.SetNX(ctx, lineKey(call.CallerID), call.ID, ActiveCallTTL)
	if err != nil {
		log.WarnContext(ctx, "call line check degraded", "call_id", call.ID, "err", err)
		return true
	}
	if !ok {
		return false
	}
	ok, err = s.store.SetNX(ctx, lineKey(call.ReceiverID), call.ID, ActiveCallTTL)
	if err != nil {
		log.WarnContext(ctx, "call line check degraded", "call_id", call.ID, "err", err)
		return true
	}
	if !ok {
		s.releaseLine(ctx, call.CallerID, call.ID)
		return false
	}
	return true
}

func (s *callServiceImpl) releaseLines(ctx context.Context, call *model.CallSession) {
	if s.store == nil {
		return
	}
	s.releaseLine(ctx, call.CallerID, call.ID)
	s.releaseLine(ctx, call.ReceiverID, call.ID)
}

// releaseLine 只释放属于本次通话的标记
func (s *callServiceImpl) releaseLine(ctx context.Context, userID uint64, callID string) {
	key := lineKey(userID)
	owner, found, err := s.store.Get(ctx, key)
	if err != nil {
		log.WarnContext(ctx, "release call line failed", "key", key, "err", err)
		return
	}
	if !found || owner != callID {
		return
	}
	if err = s.store.Delete(ctx, key); err != nil {
		log.WarnContext(ctx, "release call line failed", "key", key, "err", err)
	}
}

// toCallDTO 会话密钥只在发起时返回给主叫
func toCallDTO(c *model.CallSession, withKey bool) *dto.CallDTO {
	res := &dto.CallDTO{
		ID:         c.ID,
		Type:       string(c.Type),
		CallerID:   c.CallerID,
		ReceiverID: c.ReceiverID,
		ThreadID:   c.ThreadID,
		Status:     string(c.Status),
		StartedAt:  c.StartedAt,
		AnsweredAt: c.AnsweredAt,
		EndedAt:    c.EndedAt,
		Duration:   c.Duration,
		EndReason:  string(c.EndReason),
	}
	if !c.Quality.IsZero() {
		res.Quality = &dto.CallQualityDTO{
			AvgBitrate: c.Quality.AvgBitrate,
			PacketLoss: c.Quality.PacketLoss,
			Jitter:     c.Quality.Jitter,
			Latency:    c.Quality.Latency,
		}
	}
	if withKey {
		res.SessionKey = c.SessionKey
	}
	return res
}
