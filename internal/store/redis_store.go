package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AltanReisoglu/UCP-AGENT/internal/domain"
)

// putScript writes the session only when the incoming version is newer
// than the stored one, so a stale writer can never clobber a committed
// snapshot. Returns 1 on write, 0 on conflict.
var putScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local decoded = cjson.decode(cur)
  if tonumber(decoded['version']) >= tonumber(ARGV[1]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('EXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// RedisStore implements SessionStore on a shared Redis instance, for
// deployments where the agent surface and the embedded UI surface run
// in separate processes.
type RedisStore struct {
	client      *redis.Client
	terminalTTL time.Duration
}

func NewRedisStore(client *redis.Client, terminalTTL time.Duration) *RedisStore {
	if terminalTTL <= 0 {
		terminalTTL = DefaultTerminalTTL
	}
	return &RedisStore{client: client, terminalTTL: terminalTTL}
}

func sessionKey(id string) string {
	return fmt.Sprintf("checkout:%s", id)
}

func (r *RedisStore) Put(ctx context.Context, session *domain.CheckoutSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session failed: %w", err)
	}

	ttl := int64(0)
	if session.Status.IsTerminal() {
		ttl = int64(r.terminalTTL.Seconds())
	}

	res, err := putScript.Run(ctx, r.client,
		[]string{sessionKey(session.ID)},
		session.Version, string(payload), ttl).Int()
	if err != nil {
		return fmt.Errorf("redis put failed: %w", err)
	}
	if res == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*domain.CheckoutSession, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var session domain.CheckoutSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session failed: %w", err)
	}
	return &session, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	deleted, err := r.client.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	if deleted == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
