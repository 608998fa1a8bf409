package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/albert-vybestein/neobank/ports"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of the RecordStore interface.
// Each collection is one JSON value under prefix+name.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "neobank:collection:",
	}
}

var _ ports.RecordStore = (*RedisStore)(nil)

// Read fetches the collection value
func (s *RedisStore) Read(ctx context.Context, collection string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+collection).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read collection %s: %w", collection, err)
	}
	return data, nil
}

// Write replaces the collection value without expiry
func (s *RedisStore) Write(ctx context.Context, collection string, data []byte) error {
	if err := s.client.Set(ctx, s.prefix+collection, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write collection %s: %w", collection, err)
	}
	return nil
}
