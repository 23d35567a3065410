package hints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultHintTTL = 30 * 24 * time.Hour

var _ Store = (*RedisStore)(nil)

// RedisStore keeps the hint under one key per connection.
type RedisStore struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, connectionKey string) *RedisStore {
	return &RedisStore{
		client: client,
		key:    "integration:hint:" + connectionKey,
		ttl:    defaultHintTTL,
	}
}

func (s *RedisStore) Load(ctx context.Context) (Hint, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Hint{}, nil
	}
	if err != nil {
		return Hint{}, fmt.Errorf("[RedisStore.Load] %w", err)
	}
	var h Hint
	if err := json.Unmarshal(raw, &h); err != nil {
		return Hint{}, fmt.Errorf("[RedisStore.Load] decode: %w", err)
	}
	return h, nil
}

func (s *RedisStore) Save(ctx context.Context, hint Hint) error {
	raw, err := json.Marshal(hint)
	if err != nil {
		return fmt.Errorf("[RedisStore.Save] encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("[RedisStore.Save] %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("[RedisStore.Clear] %w", err)
	}
	return nil
}
