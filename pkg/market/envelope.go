package market

import (
	"encoding/json"
	"fmt"
	"time"
)

// Meta 快照元数据。capturedAt 是数据年龄判断的权威时间戳，
// 与日期键相互独立：存在"今天"键下的记录可能在午夜前后采集。
type Meta struct {
	CapturedAt    string `json:"capturedAt"`
	SchemaVersion int    `json:"schemaVersion"`
	Source        string `json:"source"`
}

// Envelope 每条存储记录的统一包裹结构。
// 负载在 data 或 rows 字段下，取决于采集器版本。
type Envelope struct {
	Data json.RawMessage `json:"data,omitempty"`
	Rows json.RawMessage `json:"rows,omitempty"`
	Meta Meta            `json:"meta"`
}

// ParseEnvelope 解析原始快照为包裹结构
func ParseEnvelope(raw json.RawMessage) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot envelope: %w", err)
	}
	return &env, nil
}

// Payload 返回实际负载，优先取 data，为空时取 rows
func (e *Envelope) Payload() json.RawMessage {
	if len(e.Data) > 0 && string(e.Data) != "null" {
		return e.Data
	}
	return e.Rows
}

// CapturedAtMillis 把 capturedAt 解析为毫秒时间戳。
// 解析失败时返回 (0, false)，由调用方决定替代值。
func (e *Envelope) CapturedAtMillis() (int64, bool) {
	if e.Meta.CapturedAt == "" {
		return 0, false
	}
	t, err := time.Parse(time.RFC3339, e.Meta.CapturedAt)
	if err != nil {
		return 0, false
	}
	return t.UnixMilli(), true
}
