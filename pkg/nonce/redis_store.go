package nonce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// keyPrefix is the Redis key prefix for consumed login nonces
	keyPrefix = "siwe:nonce"
)

// RedisStore implements Store using Redis. The TTL should be at least
// the issuer's lifespan so reservations outlive the MAC window.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// Compile-time interface compliance check
var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a new Redis-based consumed-nonce store.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultLifespan
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// buildKey creates a Redis key from address and nonce token
// Format: siwe:nonce:{lowercase_address}:{token}
func buildKey(token, address string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, strings.ToLower(address), token)
}

// Reserve attempts to reserve a nonce using SETNX
func (s *RedisStore) Reserve(ctx context.Context, token, address string) error {
	key := buildKey(token, address)

	// SETNX with TTL - only succeeds if key doesn't exist
	ok, err := s.client.SetNX(ctx, key, "reserved", s.ttl).Result()
	if err != nil {
		s.logger.Error("failed to reserve nonce",
			zap.String("address", address),
			zap.Error(err),
		)
		return fmt.Errorf("failed to reserve nonce: %w", err)
	}

	if !ok {
		s.logger.Warn("nonce already used or reserved",
			zap.String("address", address),
		)
		return ErrAlreadyUsed
	}

	return nil
}

// MarkUsed marks a reserved nonce as consumed
func (s *RedisStore) MarkUsed(ctx context.Context, token, address string) error {
	key := buildKey(token, address)

	if err := s.client.Set(ctx, key, "used", s.ttl).Err(); err != nil {
		s.logger.Error("failed to mark nonce as used",
			zap.String("address", address),
			zap.Error(err),
		)
		return fmt.Errorf("failed to mark nonce as used: %w", err)
	}

	return nil
}

// Release releases a reserved nonce, allowing retry
func (s *RedisStore) Release(ctx context.Context, token, address string) error {
	key := buildKey(token, address)

	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.Error("failed to release nonce",
			zap.String("address", address),
			zap.Error(err),
		)
		return fmt.Errorf("failed to release nonce: %w", err)
	}

	return nil
}
