package interaction

import (
	"context"
	"time"

	"github.com/BaSui01/dailycrew/types"
	"github.com/google/uuid"
)

// Type 交互类型
type Type string

const (
	TypeOnboarding        Type = "onboarding"
	TypeDispatch          Type = "dispatch"
	TypeCheckin           Type = "checkin"
	TypeWelcome           Type = "welcome"
	TypeActivityCheck     Type = "activity_check"
	TypeClarification     Type = "clarification"
	TypeUpdateIntegration Type = "update_integration"
	TypeWebhook           Type = "webhook"
	TypeReplay            Type = "replay"
	TypeError             Type = "error"
)

// Entry 不可变的交互记录
type Entry struct {
	ID        string          `gorm:"primaryKey;size:64" json:"id" bson:"_id"`
	UserID    string          `gorm:"size:128;not null;index" json:"user_id" bson:"user_id"`
	Type      Type            `gorm:"size:32;not null;index" json:"type" bson:"type"`
	Details   map[string]any  `gorm:"serializer:json;type:text" json:"details,omitempty" bson:"details,omitempty"`
	Failed    bool            `gorm:"not null;default:false" json:"failed" bson:"failed"`
	ErrorCode types.ErrorCode `gorm:"size:64" json:"error_code,omitempty" bson:"error_code,omitempty"`
	CreatedAt time.Time       `gorm:"not null;index" json:"created_at" bson:"created_at"`
}

// TableName implements gorm's tabler.
func (Entry) TableName() string {
	return "interactions"
}

// NewEntry 创建记录
func NewEntry(userID string, typ Type, details map[string]any) Entry {
	if details == nil {
		details = map[string]any{}
	}
	return Entry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
}

// WithFailure 标记失败并记录错误码
func (e Entry) WithFailure(code types.ErrorCode) Entry {
	e.Failed = true
	e.ErrorCode = code
	return e
}

// Sink 交互日志写入端
type Sink interface {
	Append(ctx context.Context, e Entry) error
}
