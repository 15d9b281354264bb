package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisRepository persists refresh token records in Redis. Records expire via
// TTL, so an existence check doubles as the expiry check and DeleteExpired
// has nothing to do.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

// getTokenKey generates the Redis key for a refresh token record
func getTokenKey(id uuid.UUID) string {
	return fmt.Sprintf("refresh_token:%s", id.String())
}

// Insert stores a refresh token record with TTL matching its expiry.
func (r *RedisRepository) Insert(ctx context.Context, userID uuid.UUID, expiresAt time.Time) (*RefreshToken, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil, fmt.Errorf("token expiration time is in the past")
	}

	id := uuid.New()
	now := time.Now()
	tokenKey := getTokenKey(id)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, tokenKey, map[string]interface{}{
		"user_id":    userID.String(),
		"expires_at": expiresAt.Unix(),
		"created_at": now.Unix(),
	})
	pipe.Expire(ctx, tokenKey, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &RefreshToken{
		ID:        id,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// ExistsByID reports whether the record is still present. TTL removal means a
// missing key covers both revoked and expired tokens.
func (r *RedisRepository) ExistsByID(ctx context.Context, id uuid.UUID) (bool, error) {
	count, err := r.client.Exists(ctx, getTokenKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check refresh token: %w", err)
	}
	return count > 0, nil
}

// DeleteByID removes a refresh token record. Missing keys are not an error.
func (r *RedisRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Del(ctx, getTokenKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis drops expired records via TTL.
func (r *RedisRepository) DeleteExpired(ctx context.Context, limit int) (int64, error) {
	return 0, nil
}
