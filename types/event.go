package types

import "time"

// EventKind 入站事件类型
type EventKind string

const (
	// EventKindMessage 用户消息
	EventKindMessage EventKind = "message"
	// EventKindDailyWelcome 每日欢迎（定时）
	EventKindDailyWelcome EventKind = "daily_welcome"
	// EventKindHourlyCheckin 整点签到（定时）
	EventKindHourlyCheckin EventKind = "hourly_checkin"
	// EventKindActivityCheck 活跃度检查（定时）
	EventKindActivityCheck EventKind = "activity_check"
	// EventKindWebhook 集成 webhook
	EventKindWebhook EventKind = "webhook"
)

// IsScheduled 是否为定时触发
func (k EventKind) IsScheduled() bool {
	switch k {
	case EventKindDailyWelcome, EventKindHourlyCheckin, EventKindActivityCheck:
		return true
	}
	return false
}

// Valid 是否为已知事件类型
func (k EventKind) Valid() bool {
	return k == EventKindMessage || k == EventKindWebhook || k.IsScheduled()
}

// Profile 首次接触时用于创建用户的资料
type Profile struct {
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
}

// Event 入站事件
type Event struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Kind      EventKind      `json:"kind"`
	Text      string         `json:"text,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Profile   Profile        `json:"profile,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// PayloadString 读取 payload 中的字符串字段
func (e Event) PayloadString(key string) string {
	if e.Payload == nil {
		return ""
	}
	if v, ok := e.Payload[key].(string); ok {
		return v
	}
	return ""
}

// Block 回复中的结构化块
type Block struct {
	Type   string            `json:"type"`
	Title  string            `json:"title,omitempty"`
	Text   string            `json:"text,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Reply 出站回复
type Reply struct {
	Text   string  `json:"text"`
	Blocks []Block `json:"blocks,omitempty"`
	// Silent replies are recorded but never delivered by a transport.
	Silent bool `json:"silent,omitempty"`
}

// TextReply 构造纯文本回复
func TextReply(text string) *Reply {
	return &Reply{Text: text}
}
