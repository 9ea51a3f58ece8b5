package consts

import "time"

const (
	UserSimpleInfoKey = "user:simple:info:"
	TokenBlacklistKey = "token:blacklist:"
	IMRoomKey         = "im:room:"
	IMGlobalKey       = "im:global"
)

const (
	UserSimpleInfoTTL = 30 * time.Minute
)
