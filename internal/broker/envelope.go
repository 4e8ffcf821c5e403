package broker

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/dailycrew/types"
	"github.com/google/uuid"
)

// Producer 出站消息的 producer 字段
const Producer = "dailycrew"

// Message types carried in Meta.Type.
const (
	TypeEvent          = "dailycrew.event.v1"
	TypeReply          = "dailycrew.reply.v1"
	TypeInteraction    = "dailycrew.interaction.v1"
	RoutingInteraction = "interaction.logged"
)

// ErrPoison 无法解码的消息，不应重新入队
var ErrPoison = errors.New("poison message")

// Meta 消息元数据
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      *string   `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

// Envelope 消息信封
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// NewEnvelope 创建信封，correlationID 为空时省略
func NewEnvelope(msgType string, data any, correlationID string) Envelope {
	producer := Producer
	env := Envelope{
		Meta: Meta{
			ID:       uuid.NewString(),
			Producer: &producer,
			Time:     time.Now().UTC(),
			Type:     msgType,
		},
		Data: data,
	}
	if correlationID != "" {
		env.Meta.CorrelationID = &correlationID
	}
	return env
}

// ReplyMessage 出站回复的数据部分
type ReplyMessage struct {
	EventID string          `json:"event_id"`
	UserID  string          `json:"user_id"`
	Kind    types.EventKind `json:"kind"`
	Reply   *types.Reply    `json:"reply"`
}

type eventEnvelope struct {
	Meta Meta        `json:"meta"`
	Data types.Event `json:"data"`
}

// DecodeEvent 解码入站事件；信封缺少 data 时回退为裸事件 JSON
func DecodeEvent(body []byte) (types.Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return types.Event{}, fmt.Errorf("%w: %v", ErrPoison, err)
	}
	ev := env.Data
	if ev.UserID == "" {
		if err := json.Unmarshal(body, &ev); err != nil {
			return types.Event{}, fmt.Errorf("%w: %v", ErrPoison, err)
		}
	}
	if ev.UserID == "" {
		return types.Event{}, fmt.Errorf("%w: missing user_id", ErrPoison)
	}
	if ev.Kind == "" {
		ev.Kind = types.EventKindMessage
	}
	if !ev.Kind.Valid() {
		return types.Event{}, fmt.Errorf("%w: unknown kind %q", ErrPoison, ev.Kind)
	}
	if ev.ID == "" {
		ev.ID = env.Meta.ID
	}
	return ev, nil
}

// ReplyRoutingKey 回复的路由键
func ReplyRoutingKey(kind types.EventKind) string {
	return "reply." + string(kind)
}
