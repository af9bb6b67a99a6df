package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "oauth:session:"

// RedisStore keeps handshakes in Redis with a TTL. Sessions survive a
// restart and are shared between replicas.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Save(ctx context.Context, id string, h Handshake, ttl time.Duration) error {
	b, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encoding handshake: %w", err)
	}
	return s.rdb.Set(ctx, keyPrefix+id, b, ttl).Err()
}

// Take uses GETDEL so two concurrent callbacks cannot both consume a session.
func (s *RedisStore) Take(ctx context.Context, id string) (Handshake, error) {
	b, err := s.rdb.GetDel(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Handshake{}, ErrNotFound
		}
		return Handshake{}, fmt.Errorf("session: reading handshake: %w", err)
	}

	var h Handshake
	if err := json.Unmarshal(b, &h); err != nil {
		return Handshake{}, fmt.Errorf("session: decoding handshake: %w", err)
	}
	return h, nil
}
