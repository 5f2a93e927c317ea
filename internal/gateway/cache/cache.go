package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/retrolearn/retrolearn/internal/shared/redis"
)

// Store is the key-value backend, normally *redis.Client
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// Entry is what gets cached for an operation
type Entry struct {
	Payload  json.RawMessage `json:"payload"`
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
}

type Cache struct {
	store Store
	ttl   time.Duration
}

// New creates a new cache instance. A zero ttl disables caching.
func New(store Store, ttl time.Duration) *Cache {
	return &Cache{store: store, ttl: ttl}
}

// Key hashes an operation name and its trimmed inputs. Case is kept;
// callers fold it for inputs where it carries no meaning.
func Key(operation string, parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = strings.TrimSpace(p)
	}

	hash := sha256.Sum256([]byte(operation + "\x00" + strings.Join(normalized, "\x00")))
	return "cache:" + operation + ":" + hex.EncodeToString(hash[:])
}

// Get retrieves a cached entry. ok is false on a miss or when disabled.
func (c *Cache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	if c == nil || c.store == nil || c.ttl <= 0 {
		return nil, false, nil
	}

	val, err := c.store.Get(ctx, key)
	if err == redis.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var entry Entry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, false, fmt.Errorf("failed to deserialize cached entry: %w", err)
	}

	return &entry, true, nil
}

// Set stores an entry
func (c *Cache) Set(ctx context.Context, key string, entry *Entry) error {
	if c == nil || c.store == nil || c.ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to serialize entry: %w", err)
	}

	return c.store.Set(ctx, key, string(data), c.ttl)
}
