package consts

const (
	MimePrefixImage = "image"
	MimePrefixAudio = "audio"
	MimePrefixVideo = "video"
)

const (
	// PersonalRoomPrefix 每个用户所有连接都会加入的房间
	PersonalRoomPrefix = "user:"
	// ThreadRoomPrefix 会话房间，只承载输入中等临时信号
	ThreadRoomPrefix = "thread:"
)

const (
	DecryptFailedPlaceholder = "[Unable to decrypt message]"
)
