package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"youthexchange/internal/domain"
)

const revokedKeyPrefix = "yx:revoked:jti:"

// RedisClient is the subset of redis.Cmdable used by RedisRevocationList.
type RedisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisRevocationList stores revoked token ids in Redis with the token's remaining lifetime
// as TTL, so entries disappear once the token would have expired anyway.
type RedisRevocationList struct {
	client RedisClient
}

func NewRedisRevocationList(client RedisClient) *RedisRevocationList {
	return &RedisRevocationList{client: client}
}

var _ domain.RevocationList = (*RedisRevocationList)(nil)

func (l *RedisRevocationList) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" || ttl <= 0 {
		return nil
	}
	return l.client.Set(ctx, revokedKeyPrefix+tokenID, "1", ttl).Err()
}

func (l *RedisRevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	n, err := l.client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRevocationList keeps revoked token ids in process memory.
type MemoryRevocationList struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{revoked: make(map[string]time.Time), now: time.Now}
}

var _ domain.RevocationList = (*MemoryRevocationList)(nil)

func (l *MemoryRevocationList) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" || ttl <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for id, exp := range l.revoked {
		if !exp.After(now) {
			delete(l.revoked, id)
		}
	}
	l.revoked[tokenID] = now.Add(ttl)
	return nil
}

func (l *MemoryRevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp, ok := l.revoked[tokenID]
	return ok && exp.After(l.now()), nil
}
