package api

import (
	"time"

	"github.com/BaSui01/dailycrew/types"
)

// =============================================================================
// 📨 事件
// =============================================================================

// EventRequest 入站事件请求
// @Description 提交给协调器的事件
type EventRequest struct {
	// 事件 ID，用于幂等重放；为空时由服务端生成
	ID string `json:"id,omitempty" example:"evt-123"`
	// 用户 ID
	UserID string `json:"user_id" example:"U024BE7LH"`
	// 事件类型：message、webhook、daily_welcome、hourly_checkin、activity_check
	Kind types.EventKind `json:"kind" example:"message"`
	// 消息文本
	Text string `json:"text,omitempty" example:"what's on my calendar today?"`
	// 附加数据（webhook 来源、引导步骤等）
	Payload map[string]any `json:"payload,omitempty"`
	// 首次接触时的用户资料
	Profile types.Profile `json:"profile,omitempty"`
	// 事件时间，为空时取服务端时间
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ToEvent 转换为内部事件
func (r EventRequest) ToEvent() types.Event {
	ev := types.Event{
		ID:      r.ID,
		UserID:  r.UserID,
		Kind:    r.Kind,
		Text:    r.Text,
		Payload: r.Payload,
		Profile: r.Profile,
	}
	if ev.Kind == "" {
		ev.Kind = types.EventKindMessage
	}
	if r.Timestamp != nil {
		ev.Timestamp = *r.Timestamp
	}
	return ev
}

// ReplyResponse 协调器回复
// @Description 一个回合的回复
type ReplyResponse struct {
	EventID string        `json:"event_id"`
	UserID  string        `json:"user_id"`
	Text    string        `json:"text"`
	Blocks  []types.Block `json:"blocks,omitempty"`
	// 静默回复不会投递给用户
	Silent bool `json:"silent,omitempty"`
}

// NewReplyResponse 由事件和回复构造响应
func NewReplyResponse(ev types.Event, reply *types.Reply) ReplyResponse {
	resp := ReplyResponse{EventID: ev.ID, UserID: ev.UserID}
	if reply != nil {
		resp.Text = reply.Text
		resp.Blocks = reply.Blocks
		resp.Silent = reply.Silent
	}
	return resp
}

// =============================================================================
// 👤 用户
// =============================================================================

// UserResponse 用户资料
// @Description 用户资料与集成状态，不包含任何凭据
type UserResponse struct {
	ID               string                                            `json:"id"`
	DisplayName      string                                            `json:"display_name,omitempty"`
	Email            string                                            `json:"email,omitempty"`
	Timezone         string                                            `json:"timezone"`
	Preferences      map[string]any                                    `json:"preferences,omitempty"`
	OnboardingStatus types.OnboardingStatus                            `json:"onboarding_status"`
	OnboardingStep   types.OnboardingStep                              `json:"onboarding_step"`
	Integrations     map[types.IntegrationKind]types.IntegrationStatus `json:"integrations"`
	LastActiveAt     *time.Time                                        `json:"last_active_at,omitempty"`
	CreatedAt        time.Time                                         `json:"created_at"`
}

// PreferencesRequest 偏好设置合并请求，值为 null 的键会被删除
type PreferencesRequest struct {
	Preferences map[string]any `json:"preferences"`
}

// IntegrationUpdateRequest 集成凭据更新请求
type IntegrationUpdateRequest struct {
	// 凭据原文：GitHub token、Google 凭据或 "<base-url> <token>" 形式的 YouTrack 凭据
	Credentials string `json:"credentials"`
}

// =============================================================================
// 🔌 WebSocket 帧
// =============================================================================

// Frame 类型
const (
	FrameReply = "reply"
	FrameError = "error"
	FrameReady = "ready"
)

// Frame 服务端写给 websocket 客户端的 JSON 帧
type Frame struct {
	Type    string          `json:"type"`
	EventID string          `json:"event_id,omitempty"`
	Kind    types.EventKind `json:"kind,omitempty"`
	Text    string          `json:"text,omitempty"`
	Blocks  []types.Block   `json:"blocks,omitempty"`
	Code    string          `json:"code,omitempty"`
	Time    time.Time       `json:"time"`
}

// InboundFrame 客户端发来的 JSON 帧；非 JSON 文本按纯消息处理
type InboundFrame struct {
	ID      string         `json:"id,omitempty"`
	Text    string         `json:"text"`
	Payload map[string]any `json:"payload,omitempty"`
}
