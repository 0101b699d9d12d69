package dto

// UserBriefDTO 会话/来电里展示的对方信息
type UserBriefDTO struct {
	ID        uint64 `json:"id"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatar_url"`
}

// OnlineUsersDTO 在线用户列表
type OnlineUsersDTO struct {
	UserIDs []uint64 `json:"user_ids"`
	Count   int      `json:"count"`
}
