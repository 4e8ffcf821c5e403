package persistence

import (
	"fmt"

	"github.com/BaSui01/dailycrew/internal/cache"
	"gorm.io/gorm"
)

// Backends carries the shared connections a store may need.
type Backends struct {
	Cache *cache.Manager
	DB    *gorm.DB
}

// NewContextStore creates a ContextStore based on the configuration
func NewContextStore(config StoreConfig, b Backends) (ContextStore, error) {
	switch config.Type {
	case StoreTypeMemory, "":
		return NewMemoryContextStore(), nil
	case StoreTypeRedis:
		if b.Cache == nil {
			return nil, fmt.Errorf("redis context store requires a cache manager")
		}
		return NewRedisContextStore(b.Cache, config), nil
	case StoreTypeDatabase:
		if b.DB == nil {
			return nil, fmt.Errorf("database context store requires a database")
		}
		return NewDatabaseContextStore(b.DB), nil
	default:
		return nil, fmt.Errorf("unsupported context store type: %s", config.Type)
	}
}
