package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/dailycrew/agent/session"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionContextRecord is the gorm row for one user's context.
type SessionContextRecord struct {
	UserID    string    `gorm:"primaryKey;size:128"`
	Data      string    `gorm:"type:text;not null"`
	Version   int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName implements gorm's tabler.
func (SessionContextRecord) TableName() string {
	return "session_contexts"
}

// DatabaseContextStore persists contexts in the session_contexts table.
type DatabaseContextStore struct {
	db *gorm.DB
}

// NewDatabaseContextStore creates a database-backed context store
func NewDatabaseContextStore(db *gorm.DB) *DatabaseContextStore {
	return &DatabaseContextStore{db: db}
}

// Close is a no-op; the connection pool is owned by the caller.
func (s *DatabaseContextStore) Close() error {
	return nil
}

// Ping checks if the store is healthy
func (s *DatabaseContextStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Load implements ContextStore
func (s *DatabaseContextStore) Load(ctx context.Context, userID string) (*session.Context, error) {
	var rec SessionContextRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session context: %w", err)
	}
	return decode(userID, []byte(rec.Data))
}

// Save implements ContextStore
func (s *DatabaseContextStore) Save(ctx context.Context, c *session.Context) error {
	if c != nil {
		c.Version++
		c.UpdatedAt = time.Now().UTC()
	}
	raw, err := encode(c)
	if err != nil {
		return err
	}
	rec := SessionContextRecord{
		UserID:    c.UserID,
		Data:      string(raw),
		Version:   c.Version,
		UpdatedAt: c.UpdatedAt,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "version", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save session context: %w", err)
	}
	return nil
}

// Delete implements ContextStore
func (s *DatabaseContextStore) Delete(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&SessionContextRecord{}).Error
}
