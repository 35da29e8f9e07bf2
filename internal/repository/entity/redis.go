package entity

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/oshokin/safezone/internal/domain/tracking"
	pb "github.com/oshokin/safezone/internal/pb/v1"
)

// DefaultRedisKeyPrefix namespaces entity keys when no prefix is configured.
const DefaultRedisKeyPrefix = "safezone:entity:"

// RedisRepository stores each entity as a JSON string under <prefix><id>
// and keeps the set of known ids under <prefix>index.
type RedisRepository struct {
	// client is the Redis connection pool.
	client redis.UniversalClient
	// prefix is prepended to every key.
	prefix string
}

// NewRedisRepository creates a repository on top of an existing client.
func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}

	return &RedisRepository{
		client: client,
		prefix: prefix,
	}
}

// key returns the Redis key of an entity.
func (r *RedisRepository) key(id string) string {
	return r.prefix + id
}

// indexKey returns the key of the id set.
func (r *RedisRepository) indexKey() string {
	return r.prefix + "index"
}

// Load reads one entity.
func (r *RedisRepository) Load(ctx context.Context, id string) (*tracking.Entity, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("get entity: %w", err)
	}

	e, err := pb.UnmarshalEntity(data)
	if err != nil {
		return nil, fmt.Errorf("decode entity %s: %w", id, err)
	}

	return e, nil
}

// Save writes the entity and its index entry in one transaction.
func (r *RedisRepository) Save(ctx context.Context, e *tracking.Entity) error {
	data, err := pb.MarshalEntity(e)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(e.ID), data, 0)
		pipe.SAdd(ctx, r.indexKey(), e.ID)

		return nil
	})
	if err != nil {
		return fmt.Errorf("save entity: %w", err)
	}

	return nil
}

// List reads every indexed entity ordered by id. Index entries without a value are skipped.
func (r *RedisRepository) List(ctx context.Context) ([]*tracking.Entity, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list entity ids: %w", err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.key(id))
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get entities: %w", err)
	}

	result := make([]*tracking.Entity, 0, len(values))

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}

		e, err := pb.UnmarshalEntity([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode entity %s: %w", ids[i], err)
		}

		result = append(result, e)
	}

	sortByID(result)

	return result, nil
}
