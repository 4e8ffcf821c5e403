// Package persistence provides Session Context stores.
//
// Supported backends:
// - Memory: for development and testing (default)
// - Redis: shared across instances, expires after inactivity
// - Database: durable, through gorm
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/dailycrew/agent/session"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrCorrupt      = errors.New("session context corrupt")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeDatabase StoreType = "database"
)

// StoreConfig is the configuration shared by all context stores
type StoreConfig struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type"`

	// TTL is the inactivity expiry for redis-backed contexts (0 = never)
	TTL time.Duration `json:"ttl" yaml:"ttl"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type: StoreTypeMemory,
		TTL:  7 * 24 * time.Hour,
	}
}

// Store is the base interface for all persistent stores
type Store interface {
	// Close closes the store and releases resources
	Close() error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error
}

// ContextStore persists Session Contexts keyed by user id.
//
// Load returns ErrNotFound when the user has no context yet, and an error
// wrapping ErrCorrupt when stored data cannot be decoded or fails validation.
type ContextStore interface {
	Store

	Load(ctx context.Context, userID string) (*session.Context, error)
	Save(ctx context.Context, c *session.Context) error
	Delete(ctx context.Context, userID string) error
}

// encode serialises a context for storage.
func encode(c *session.Context) ([]byte, error) {
	if c == nil || c.UserID == "" {
		return nil, ErrInvalidInput
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode session context: %w", err)
	}
	return data, nil
}

// decode parses and validates stored data.
func decode(userID string, data []byte) (*session.Context, error) {
	var c session.Context
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := c.Validate(userID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if c.Turns == nil {
		c.Turns = []session.Turn{}
	}
	if c.SubTasks == nil {
		c.SubTasks = []session.SubTask{}
	}
	return &c, nil
}
