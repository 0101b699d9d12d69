package realtime

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/pkg/consts"
	"Murmur/internal/pkg/logger"
	"Murmur/internal/pkg/util"
	"Murmur/internal/service"
	"context"
	"fmt"
	log "log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const eventTimeout = 10 * time.Second

type handlerFunc func(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error)

// Dispatcher 把客户端事件路由到业务服务，带 ack_id 的事件回 ack，其余失败回 error
type Dispatcher struct {
	hub      *Hub
	presence *Presence
	im       service.IMService
	calls    service.CallService
	handlers map[string]handlerFunc
}

func NewDispatcher(hub *Hub, presence *Presence, im service.IMService, calls service.CallService) *Dispatcher {
	d := &Dispatcher{
		hub:      hub,
		presence: presence,
		im:       im,
		calls:    calls,
	}
	d.handlers = map[string]handlerFunc{
		consts.EventJoinThread:       d.joinThread,
		consts.EventLeaveThread:      d.leaveThread,
		consts.EventTyping:           d.typing(true),
		consts.EventStopTyping:       d.typing(false),
		consts.EventSendMessage:      d.sendMessage,
		consts.EventMessageDelivered: d.messageDelivered,
		consts.EventGetOnlineUsers:   d.getOnlineUsers,
		consts.EventInitiateCall:     d.initiateCall,
		consts.EventAcceptCall:       d.acceptCall,
		consts.EventRejectCall:       d.rejectCall,
		consts.EventEndCall:          d.endCall,
		consts.EventOffer:            d.relay(consts.EventOffer),
		consts.EventAnswer:           d.relay(consts.EventAnswer),
		consts.EventIceCandidate:     d.relay(consts.EventIceCandidate),
	}
	return d
}

// Handle 每个事件独立的 trace_id 与超时
func (d *Dispatcher) Handle(ctx context.Context, c *Client, in *dto.InboundEvent) {
	ctx = logger.WithTraceID(ctx, uuid.NewString())
	ctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()

	h, ok := d.handlers[in.Event]
	if !ok {
		d.fail(ctx, c, in, fmt.Errorf("%w: unknown event %q", service.ErrParamInvalid, in.Event))
		return
	}
	res, err := h(ctx, c, in.Data)
	if err != nil {
		d.fail(ctx, c, in, err)
		return
	}
	if in.AckID != "" {
		c.Emit(consts.EventAck, &dto.AckEvent{AckID: in.AckID, OK: true, Data: res})
	}
}

func (d *Dispatcher) fail(ctx context.Context, c *Client, in *dto.InboundEvent, err error) {
	code, known := service.CodeOf(err)
	msg := service.UnExpectedError.Error()
	if known != nil {
		msg = known.Error()
		log.InfoContext(ctx, "ws event rejected", "event", in.Event, "user_id", c.userID, "err", err)
	} else {
		log.ErrorContext(ctx, "ws event failed", "event", in.Event, "user_id", c.userID, "err", err)
	}

	if in.AckID != "" {
		c.Emit(consts.EventAck, &dto.AckEvent{AckID: in.AckID, OK: false, Code: code, Error: msg})
		return
	}
	c.Emit(consts.EventError, &dto.ErrorEvent{Event: in.Event, Message: msg})
}

// decode 反序列化并校验
func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", service.ErrParamInvalid, err)
	}
	if err := util.ValidateDTO(v); err != nil {
		return fmt.Errorf("%w: %v", service.ErrParamInvalid, err)
	}
	return nil
}

func (d *Dispatcher) joinThread(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req dto.ThreadRoomReq
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if _, err := d.im.ThreadPeer(ctx, req.ThreadID, c.userID); err != nil {
		return nil, err
	}
	d.hub.Join(ctx, c, ThreadRoom(req.ThreadID))
	return nil, nil
}

func (d *Dispatcher) leaveThread(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req dto.ThreadRoomReq
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	d.hub.Leave(ctx, c, ThreadRoom(req.ThreadID))
	return nil, nil
}

// typing 输入状态只发给对方的个人房间
func (d *Dispatcher) typing(isTyping bool) handlerFunc {
	return func(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
		var req dto.ThreadRoomReq
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		peer, err := d.im.ThreadPeer(ctx, req.ThreadID, c.userID)
		if err != nil {
			return nil, err
		}
		d.hub.ToUser(ctx, peer, consts.EventUserTyping, &dto.TypingEvent{
			ThreadID: req.ThreadID,
			UserID:   c.userID,
			IsTyping: isTyping,
		})
		return nil, nil
	}
}

func (d *Dispatcher) sendMessage(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req dto.WSSendMessageReq
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	msg, err := d.im.SendMessage(ctx, c.userID, req.ThreadID, &req.SendMessageReq)
	if err != nil {
		return nil, err
	}
	c.Emit(consts.EventMessageSent, msg)
	return msg, nil
}

func (d *Dispatcher) messageDelivered(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req dto.MessageRefReq
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return nil, d.im.MarkDelivered(ctx, req.MessageID, c.userID)
}

func (d *Dispatcher) getOnlineUsers(ctx context.Context, c *Client, _ json.RawMessage) (interface{}, error) {
	ids := d.presence.ListOnline(ctx)
	res := &dto.OnlineUsersDTO{UserIDs: ids, Count: len(ids)}
	c.Emit(consts.EventOnlineUsersList, res)
	return res, nil
}

func (d *Dispatcher) initiateCall(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req dto.WSCallReq
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return d.calls.RequestCall(ctx, c.userID, req.ReceiverID, req.Type)
}

func (d *Dispatcher) acceptCall(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req dto.WSCallRefReq
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return d.calls.AcceptCall(ctx, req.CallID, c.userID)
}

func (d *Dispatcher) rejectCall(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req dto.WSCallRefReq
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return d.calls.RejectCall(ctx, req.CallID, c.userID)
}

func (d *Dispatcher) endCall(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req dto.WSCallRefReq
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return d.calls.EndCall(ctx, req.CallID, c.userID, &req.EndCallReq)
}

// relay 信令内容不做校验
func (d *Dispatcher) relay(event string) handlerFunc {
	return func(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
		var req dto.SignalReq
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", service.ErrParamInvalid, err)
		}
		return nil, d.calls.Relay(ctx, c.userID, event, &req)
	}
}
