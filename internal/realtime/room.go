package realtime

import (
	"strconv"
	"strings"
)

const directRoomSep = "-"

// RoomFor 计算会话房间号
// 群聊为群 ID；单聊为双方 ID 的字符串按字典序排序后以 "-" 拼接，与参数顺序无关
func RoomFor(isGroup bool, userID, targetID uint64) string {
	target := strconv.FormatUint(targetID, 10)
	if isGroup {
		return target
	}
	user := strconv.FormatUint(userID, 10)
	if user > target {
		user, target = target, user
	}
	return user + directRoomSep + target
}

// ParseDirectRoom 拆分单聊房间号，非单聊房间返回 false
func ParseDirectRoom(roomID string) (string, string, bool) {
	a, b, ok := strings.Cut(roomID, directRoomSep)
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}

// CanJoin 单聊房间仅限双方加入；群聊房间只要求是合法的群 ID，成员关系由群组模块维护
func CanJoin(userID uint64, roomID string) bool {
	if a, b, ok := ParseDirectRoom(roomID); ok {
		self := strconv.FormatUint(userID, 10)
		if !isID(a) || !isID(b) {
			return false
		}
		return a == self || b == self
	}
	return isID(roomID)
}

func isID(s string) bool {
	id, err := strconv.ParseUint(s, 10, 64)
	return err == nil && id > 0
}
