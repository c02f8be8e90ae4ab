package persistence

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Backends carries the shared clients a store may be built on.
type Backends struct {
	Redis redis.UniversalClient
	DB    *gorm.DB
}

// NewConversationStore creates a ConversationStore based on the configuration
func NewConversationStore(config StoreConfig, backends Backends) (ConversationStore, error) {
	switch config.Type {
	case StoreTypeMemory, "":
		return NewMemoryConversationStore(config), nil
	case StoreTypeRedis:
		if backends.Redis == nil {
			return nil, fmt.Errorf("conversation store %q needs a redis client", config.Type)
		}
		return NewRedisConversationStore(backends.Redis, config), nil
	case StoreTypeDatabase:
		if backends.DB == nil {
			return nil, fmt.Errorf("conversation store %q needs a database", config.Type)
		}
		return NewGormConversationStore(backends.DB), nil
	default:
		return nil, fmt.Errorf("unsupported conversation store type: %s", config.Type)
	}
}
