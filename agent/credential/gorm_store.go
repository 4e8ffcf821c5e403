package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/dailycrew/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record 凭据表行
type Record struct {
	ID        uint                  `gorm:"primaryKey"`
	UserID    string                `gorm:"size:128;not null;uniqueIndex:idx_credentials_user_kind"`
	Kind      types.IntegrationKind `gorm:"size:32;not null;uniqueIndex:idx_credentials_user_kind"`
	Payload   string                `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName implements gorm's tabler.
func (Record) TableName() string {
	return "credentials"
}

// GormStore 基于 gorm 的凭据存储
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建 gorm 凭据存储
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Get 读取凭据
func (s *GormStore) Get(ctx context.Context, userID string, kind types.IntegrationKind) (*Credential, error) {
	var rec Record
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, kind).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &Credential{
		UserID:    rec.UserID,
		Kind:      rec.Kind,
		Payload:   Payload(rec.Payload),
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

// Put 按 (user_id, kind) upsert
func (s *GormStore) Put(ctx context.Context, userID string, kind types.IntegrationKind, payload Payload) error {
	if err := validate(userID, kind); err != nil {
		return err
	}
	if payload == "" {
		return ErrInvalidInput
	}
	rec := Record{UserID: userID, Kind: kind, Payload: payload.Reveal()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

// Has 能力检查
func (s *GormStore) Has(ctx context.Context, userID string, kind types.IntegrationKind) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Record{}).
		Where("user_id = ? AND kind = ?", userID, kind).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check credential: %w", err)
	}
	return count > 0, nil
}

// MemoryStore 内存凭据存储，适合开发与测试
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[types.IntegrationKind]Credential
}

// NewMemoryStore 创建内存凭据存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[types.IntegrationKind]Credential)}
}

// Get 读取凭据
func (s *MemoryStore) Get(ctx context.Context, userID string, kind types.IntegrationKind) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data[userID][kind]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

// Put 写入凭据
func (s *MemoryStore) Put(ctx context.Context, userID string, kind types.IntegrationKind, payload Payload) error {
	if err := validate(userID, kind); err != nil {
		return err
	}
	if payload == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[userID] == nil {
		s.data[userID] = make(map[types.IntegrationKind]Credential)
	}
	s.data[userID][kind] = Credential{UserID: userID, Kind: kind, Payload: payload, UpdatedAt: time.Now().UTC()}
	return nil
}

// Has 能力检查
func (s *MemoryStore) Has(ctx context.Context, userID string, kind types.IntegrationKind) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[userID][kind]
	return ok, nil
}
