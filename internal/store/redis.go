package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/signboard/pkg/signboard"
)

// RedisStore keeps the snapshot as one JSON string under the session's
// snapshot key. A single SET replaces it atomically; the key's existence is
// the first-launch marker.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedis creates a store on a new Redis client built from redisOpts.
func NewRedis(redisOpts *redis.Options, session string) *RedisStore {
	return &RedisStore{
		rdb: redis.NewClient(redisOpts),
		key: signboard.SnapshotKey(session),
	}
}

// NewRedisFromURL parses a redis:// URL and creates a store for it.
func NewRedisFromURL(url, session string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return NewRedis(opts, session), nil
}

func (s *RedisStore) Load(ctx context.Context) []signboard.Signboard {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[Store] Failed to read %s, starting empty: %v", s.key, err)
		}
		return []signboard.Signboard{}
	}
	return signboard.DecodeSnapshot(data)
}

func (s *RedisStore) Initialized(ctx context.Context) bool {
	n, err := s.rdb.Exists(ctx, s.key).Result()
	if err != nil {
		log.Printf("[Store] Failed to check %s: %v", s.key, err)
		return false
	}
	return n > 0
}

func (s *RedisStore) Save(ctx context.Context, items []signboard.Signboard) error {
	data, err := signboard.EncodeSnapshot(items)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.key, err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
