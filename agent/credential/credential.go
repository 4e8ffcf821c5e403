package credential

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/dailycrew/types"
	"go.uber.org/zap/zapcore"
)

var (
	// ErrNotFound 用户没有该集成的凭据
	ErrNotFound = errors.New("credential not found")
	// ErrInvalidInput 用户 ID、集成类型或凭据为空
	ErrInvalidInput = errors.New("invalid credential input")
)

const redacted = "[REDACTED]"

// Payload 凭据原文，任何格式化输出都会脱敏
type Payload string

// String implements fmt.Stringer.
func (Payload) String() string { return redacted }

// GoString implements fmt.GoStringer.
func (Payload) GoString() string { return redacted }

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (p Payload) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("payload", redacted)
	enc.AddInt("length", len(p))
	return nil
}

// Reveal 返回原文，仅供集成适配器使用
func (p Payload) Reveal() string { return string(p) }

// Credential 凭据记录
type Credential struct {
	UserID    string
	Kind      types.IntegrationKind
	Payload   Payload
	UpdatedAt time.Time
}

// Store 凭据存储
type Store interface {
	// Get 读取凭据，不存在时返回 ErrNotFound
	Get(ctx context.Context, userID string, kind types.IntegrationKind) (*Credential, error)
	// Put 写入或覆盖凭据
	Put(ctx context.Context, userID string, kind types.IntegrationKind, payload Payload) error
	// Has 能力检查
	Has(ctx context.Context, userID string, kind types.IntegrationKind) (bool, error)
}

// Handle 传给专家的不透明凭据句柄
type Handle struct {
	UserID string                `json:"user_id"`
	Kind   types.IntegrationKind `json:"kind"`

	store Store
}

// NewHandle 创建句柄
func NewHandle(store Store, userID string, kind types.IntegrationKind) Handle {
	return Handle{UserID: userID, Kind: kind, store: store}
}

// Open 在集成适配器内取出凭据原文
func (h Handle) Open(ctx context.Context) (Payload, error) {
	if h.store == nil {
		return "", ErrNotFound
	}
	c, err := h.store.Get(ctx, h.UserID, h.Kind)
	if err != nil {
		return "", err
	}
	return c.Payload, nil
}

// Find 在句柄列表中查找指定集成
func Find(handles []Handle, kind types.IntegrationKind) (Handle, bool) {
	for _, h := range handles {
		if h.Kind == kind {
			return h, true
		}
	}
	return Handle{}, false
}

func validate(userID string, kind types.IntegrationKind) error {
	if userID == "" || kind == "" {
		return ErrInvalidInput
	}
	return nil
}
