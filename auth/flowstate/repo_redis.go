package flowstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "integration:flow:"

var _ Repo = (*RedisRepo)(nil)

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisRepo shares flow state between instances behind a load balancer, so the callback may land on
// a different instance than the one that started the authorization.
type RedisRepo struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
}

func NewRedisRepo(client *redis.Client, ttl time.Duration) *RedisRepo {
	return &RedisRepo{client: client, ttl: ttl, timeout: 3 * time.Second}
}

func (r *RedisRepo) Upsert(state *FlowState) error {
	if state == nil || state.State == "" {
		return errors.New("state cannot be empty")
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("[RedisRepo.Upsert] encode: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.client.Set(ctx, keyPrefix+state.State, raw, r.ttl).Err()
}

func (r *RedisRepo) Get(state string) (*FlowState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.get(ctx, r.client, state)
}

func (r *RedisRepo) get(ctx context.Context, c getter, state string) (*FlowState, error) {
	raw, err := c.Get(ctx, keyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("[RedisRepo.Get] %w", err)
	}
	var fs FlowState
	if err := json.Unmarshal(raw, &fs); err != nil {
		return nil, fmt.Errorf("[RedisRepo.Get] decode: %w", err)
	}
	return &fs, nil
}

// MarkConsumed uses WATCH so two instances handling a replayed callback cannot both win.
func (r *RedisRepo) MarkConsumed(state, codeHash string, at time.Time) (*FlowState, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	key := keyPrefix + state
	var result *FlowState
	won := false
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		fs, err := r.get(ctx, tx, state)
		if err != nil {
			return err
		}
		if fs.Consumed() {
			result = fs
			return nil
		}
		fs.ConsumedCodeHash = codeHash
		fs.ConsumedAt = at
		raw, err := json.Marshal(fs)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		result, won = fs, true
		return nil
	}, key)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("[RedisRepo.MarkConsumed] %w", err)
	}
	return result, won, nil
}

func (r *RedisRepo) Delete(state string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.client.Del(ctx, keyPrefix+state).Err()
}

// DeleteExpired is a no-op: keys carry their own TTL.
func (r *RedisRepo) DeleteExpired(time.Time) error {
	return nil
}
