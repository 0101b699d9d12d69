package consts

const (
	TokenRevokedKey      = "auth:revoked:"
	PresenceKey          = "presence:"
	PresenceGoneKey      = "presence_gone:"
	PresenceSnapshotKey  = "presence_sweep:snapshot"
	PresenceSweepLockKey = "presence_sweep:lock"
	CallActiveKey        = "call:active:"
	MediaTempKey         = "im:media:temp:"
	RoomChannelKey       = "im:room:"
	BroadcastChannel     = "im:broadcast"
)
