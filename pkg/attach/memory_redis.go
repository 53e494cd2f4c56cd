package attach

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisTable is a Table shared between processes through Redis.
type RedisTable struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisTable creates a table on a new client; keys are stored as "attach:<key>".
func NewRedisTable(addr string, password string, db int) *RedisTable {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisTableFromClient(rdb, "attach:")
}

// NewRedisTableFromClient uses an existing client and key prefix.
func NewRedisTableFromClient(client redis.UniversalClient, prefix string) *RedisTable {
	return &RedisTable{client: client, prefix: prefix}
}

// Ping checks connectivity.
func (t *RedisTable) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

func (t *RedisTable) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := t.client.Get(ctx, t.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed for %s: %w", key, err)
	}
	return data, true, nil
}

// PutIfAbsent relies on SETNX, so concurrent stores of one key have a single winner.
func (t *RedisTable) PutIfAbsent(ctx context.Context, key string, data []byte) (bool, error) {
	ok, err := t.client.SetNX(ctx, t.prefix+key, data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed for %s: %w", key, err)
	}
	return ok, nil
}

func (t *RedisTable) Delete(ctx context.Context, key string) (bool, error) {
	n, err := t.client.Del(ctx, t.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del failed for %s: %w", key, err)
	}
	return n > 0, nil
}

func (t *RedisTable) Has(ctx context.Context, key string) (bool, error) {
	n, err := t.client.Exists(ctx, t.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed for %s: %w", key, err)
	}
	return n > 0, nil
}

// Close closes the underlying client.
func (t *RedisTable) Close() error {
	return t.client.Close()
}
