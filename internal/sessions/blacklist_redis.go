package sessions

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blacklist records revoked access tokens until they would have expired
// anyway. A nil client disables it.
type Blacklist struct {
	client *redis.Client
	prefix string
}

func NewBlacklist(client *redis.Client, prefix string) *Blacklist {
	if prefix == "" {
		prefix = "blacklist:access:"
	}
	return &Blacklist{client: client, prefix: prefix}
}

// Revoke stores token with the given TTL.
func (b *Blacklist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if b == nil || b.client == nil || token == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return b.client.Set(ctx, b.prefix+token, "1", ttl).Err()
}

// IsRevoked reports whether token was revoked and has not yet aged out.
func (b *Blacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	if b == nil || b.client == nil {
		return false, nil
	}
	n, err := b.client.Exists(ctx, b.prefix+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
