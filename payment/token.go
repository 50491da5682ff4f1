package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenCache holds provider access tokens shared by every request. Get
// returns "" when nothing usable is cached.
type TokenCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, token string, ttl time.Duration) error
}

type cachedToken struct {
	value     string
	expiresAt time.Time
}

type MemoryTokenCache struct {
	mu     sync.Mutex
	tokens map[string]cachedToken
	now    func() time.Time
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{tokens: make(map[string]cachedToken), now: time.Now}
}

func (m *MemoryTokenCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[key]
	if !ok || !m.now().Before(tok.expiresAt) {
		delete(m.tokens, key)
		return "", nil
	}
	return tok.value, nil
}

func (m *MemoryTokenCache) Set(_ context.Context, key, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[key] = cachedToken{value: token, expiresAt: m.now().Add(ttl)}
	return nil
}

// RedisTokenCache shares tokens across every process of the deployment.
type RedisTokenCache struct {
	client *redis.Client
	prefix string
}

func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{client: client, prefix: "payment:token:"}
}

func (r *RedisTokenCache) Get(ctx context.Context, key string) (string, error) {
	tok, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return tok, err
}

func (r *RedisTokenCache) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+key, token, ttl).Err()
}
