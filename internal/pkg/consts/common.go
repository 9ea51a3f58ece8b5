package consts

const (
	MimePrefixImage = "image"
	MimePrefixVideo = "video"
)

// 消息类型
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeVideo = "video"
	MessageTypeEmoji = "emoji"
	MessageTypeFile  = "file"
)

// ObjectFolder 上传到对象存储时的顶层目录
const ObjectFolder = "zalor"

const (
	DefaultAvatarURL = "default_avatar.png"
)

// 上下文中的用户标识
const (
	CtxUserID = "user_id"
)
