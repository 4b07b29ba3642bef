package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisRevocationCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRevocationCacheStore(client redis.UniversalClient, prefix string) *RedisRevocationCacheStore {
	if prefix == "" {
		prefix = "auth"
	}
	return &RedisRevocationCacheStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisRevocationCacheStore) Contains(ctx context.Context, tokenHash string) (bool, error) {
	if s.client == nil {
		return false, nil
	}
	_, err := s.client.Get(ctx, s.key(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisRevocationCacheStore) Add(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.key(tokenHash), "1", ttl).Err()
}

func (s *RedisRevocationCacheStore) key(tokenHash string) string {
	return fmt.Sprintf("%s:revoked_access:%s", s.prefix, tokenHash)
}
