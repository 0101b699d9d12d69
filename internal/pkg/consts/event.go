package consts

// 客户端 -> 服务端
const (
	EventJoinThread       = "joinThread"
	EventLeaveThread      = "leaveThread"
	EventTyping           = "typing"
	EventStopTyping       = "stopTyping"
	EventSendMessage      = "sendMessage"
	EventMessageDelivered = "messageDelivered"
	EventGetOnlineUsers   = "getOnlineUsers"
	EventInitiateCall     = "initiateCall"
	EventAcceptCall       = "acceptCall"
	EventRejectCall       = "rejectCall"
	EventEndCall          = "endCall"
	EventOffer            = "offer"
	EventAnswer           = "answer"
	EventIceCandidate     = "iceCandidate"
)

// 服务端 -> 客户端
const (
	EventUserOnline      = "userOnline"
	EventUserOffline     = "userOffline"
	EventOnlineUsersList = "onlineUsersList"
	EventNewMessage      = "newMessage"
	EventMessageSent     = "messageSent"
	EventMessageStatus   = "messageStatus"
	EventMessageEdited   = "messageEdited"
	EventMessageDeleted  = "messageDeleted"
	EventNewThread       = "newThread"
	EventThreadDeleted   = "threadDeleted"
	EventThreadBlocked   = "threadBlocked"
	EventUserTyping      = "userTyping"
	EventIncomingCall    = "incomingCall"
	EventCallAccepted    = "callAccepted"
	EventCallRejected    = "callRejected"
	EventCallEnded       = "callEnded"
	EventCallFailed      = "callFailed"
	EventError           = "error"
	EventAck             = "ack"
)
