package kafka

import (
	"fmt"
	"strconv"
)

// Canal 事件类型
const (
	INSERT = "INSERT"
	UPDATE = "UPDATE"
	DELETE = "DELETE"
)

// CanalMessage Canal 推送到 Kafka 的 JSON 数据结构
type CanalMessage struct {
	ID       int64    `json:"id"`
	Database string   `json:"database"`
	Table    string   `json:"table"`
	PKNames  []string `json:"pkNames"`
	IsDDL    bool     `json:"isDdl"`
	Type     string   `json:"type"`
	ES       int64    `json:"es"`
	TS       int64    `json:"ts"`

	// Data 变更后的行
	Data []map[string]interface{} `json:"data"`

	// Old 仅包含 UPDATE 时被修改的列的旧值
	Old []map[string]interface{} `json:"old"`
}

// Changed 判断第 i 行的指定列是否在本次 UPDATE 中被修改
func (m *CanalMessage) Changed(i int, columns ...string) bool {
	if i >= len(m.Old) || m.Old[i] == nil {
		return false
	}
	for _, col := range columns {
		if _, ok := m.Old[i][col]; ok {
			return true
		}
	}
	return false
}

// StrToUint64 Canal 的列值统一为字符串，数值类型兜底
func StrToUint64(v interface{}) (uint64, error) {
	switch val := v.(type) {
	case string:
		return strconv.ParseUint(val, 10, 64)
	case float64:
		if val < 0 {
			return 0, fmt.Errorf("negative id %v", val)
		}
		return uint64(val), nil
	case nil:
		return 0, fmt.Errorf("id is null")
	default:
		return strconv.ParseUint(fmt.Sprint(val), 10, 64)
	}
}
