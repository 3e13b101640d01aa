package sessions

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository keeps the generation in "<prefix>gen:<user>" (no TTL) and
// the current login as a hash in "<prefix>cur:<user>" expiring with the
// session.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository creates a Redis-based session repository. Prefix may be empty.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "session:"
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) genKey(user string) string { return r.prefix + "gen:" + user }
func (r *RedisRepository) curKey(user string) string { return r.prefix + "cur:" + user }

var bumpScript = redis.NewScript(`
local g = redis.call('INCR', KEYS[1])
redis.call('DEL', KEYS[2])
redis.call('HSET', KEYS[2], 'generation', g, 'token', ARGV[1], 'startedAt', ARGV[2], 'expiresAt', ARGV[3])
redis.call('PEXPIRE', KEYS[2], ARGV[4])
return g
`)

var endScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'generation') == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

func (r *RedisRepository) Bump(ctx context.Context, s *Session) (int64, error) {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	return bumpScript.Run(ctx, r.client,
		[]string{r.genKey(s.UserID), r.curKey(s.UserID)},
		s.Token,
		s.StartedAt.UTC().Format(time.RFC3339Nano),
		s.ExpiresAt.UTC().Format(time.RFC3339Nano),
		ttl.Milliseconds(),
	).Int64()
}

func (r *RedisRepository) Current(ctx context.Context, userID string) (*Session, error) {
	gen, err := r.client.Get(ctx, r.genKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	s := &Session{UserID: userID, Generation: gen}
	h, err := r.client.HGetAll(ctx, r.curKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	if g, _ := strconv.ParseInt(h["generation"], 10, 64); g != gen {
		return s, nil
	}
	s.Token = h["token"]
	s.StartedAt, _ = time.Parse(time.RFC3339Nano, h["startedAt"])
	s.ExpiresAt, _ = time.Parse(time.RFC3339Nano, h["expiresAt"])
	return s, nil
}

func (r *RedisRepository) End(ctx context.Context, userID string, generation int64) (bool, error) {
	n, err := endScript.Run(ctx, r.client, []string{r.curKey(userID)}, strconv.FormatInt(generation, 10)).Int64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
