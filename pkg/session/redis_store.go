package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/tenantguard/pkg/auth"
)

const sessionKeyPrefix = "session:"

// record is the JSON stored per session.
type record struct {
	UserID    string      `json:"uid"`
	Claims    auth.Claims `json:"claims"`
	CreatedAt time.Time   `json:"created_at"`
}

// RedisStore keeps server-side sessions in Redis. Only the SHA-256 of a
// session id is stored, so a leaked key set cannot be replayed as cookies.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a store whose sessions live for ttl.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func storageKey(id string) string {
	return sessionKeyPrefix + auth.HashToken(id)
}

// Create stores a new session for identity and returns its opaque id.
func (s *RedisStore) Create(ctx context.Context, identity auth.Identity) (string, error) {
	if identity.UserID == "" {
		return "", errors.New("session requires a user id")
	}
	id, err := auth.GenerateToken(auth.MinTokenBytes)
	if err != nil {
		return "", err
	}

	now := s.now()
	claims := identity.Claims
	claims.IssuedAt = now
	claims.ExpiresAt = now.Add(s.ttl)

	data, err := json.Marshal(record{UserID: identity.UserID, Claims: claims, CreatedAt: now})
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, storageKey(id), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return id, nil
}

// Verify implements Verifier.
func (s *RedisStore) Verify(ctx context.Context, id string) (*auth.Identity, error) {
	if auth.ValidateTokenFormat(id) != nil {
		return nil, ErrInvalidSession
	}

	data, err := s.client.Get(ctx, storageKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVerifierUnavailable, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: corrupt session record: %v", ErrInvalidSession, err)
	}
	if !rec.Claims.ExpiresAt.IsZero() && !s.now().Before(rec.Claims.ExpiresAt) {
		return nil, ErrInvalidSession
	}
	return &auth.Identity{UserID: rec.UserID, Claims: rec.Claims}, nil
}

// Revoke deletes a session. Revoking an unknown session is not an error.
func (s *RedisStore) Revoke(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, storageKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}
