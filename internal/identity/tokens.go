package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Token is an issued bearer credential.
type Token struct {
	// ID is the non-secret prefix of Value, safe to persist and log.
	ID        string
	Value     string
	UserID    int64
	ExpiresAt time.Time
}

// TokenStore keeps opaque bearer tokens in Redis with a sliding TTL.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, ttl: ttl, now: time.Now}
}

// TTL exposes the configured token lifetime.
func (s *TokenStore) TTL() time.Duration {
	return s.ttl
}

// Issue creates a token for userID.
func (s *TokenStore) Issue(ctx context.Context, userID int64) (Token, error) {
	if userID <= 0 {
		return Token{}, errors.New("identity: user id required")
	}
	id, value, err := newTokenValue()
	if err != nil {
		return Token{}, err
	}
	if err := s.client.Set(ctx, tokenKey(value), strconv.FormatInt(userID, 10), s.ttl).Err(); err != nil {
		return Token{}, fmt.Errorf("identity: store token: %w", err)
	}
	return Token{ID: id, Value: value, UserID: userID, ExpiresAt: s.now().Add(s.ttl)}, nil
}

// Lookup resolves a token to its user id and refreshes the TTL.
func (s *TokenStore) Lookup(ctx context.Context, value string) (int64, error) {
	if value == "" {
		return 0, ErrUnauthenticated
	}
	raw, err := s.client.GetEx(ctx, tokenKey(value), s.ttl).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrUnauthenticated
	}
	if err != nil {
		return 0, fmt.Errorf("identity: lookup token: %w", err)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrUnauthenticated
	}
	return id, nil
}

// Revoke deletes a token. Revoking an unknown token is not an error.
func (s *TokenStore) Revoke(ctx context.Context, value string) error {
	if value == "" {
		return nil
	}
	if err := s.client.Del(ctx, tokenKey(value)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("identity: revoke token: %w", err)
	}
	return nil
}

func tokenKey(value string) string {
	return "session:" + value
}

// TokenID returns the id part of a token value.
func TokenID(value string) string {
	id, _, _ := strings.Cut(value, ".")
	return id
}

func newTokenValue() (string, string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", "", fmt.Errorf("identity: token id: %w", err)
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("identity: token entropy: %w", err)
	}
	return id.String(), id.String() + "." + base64.RawURLEncoding.EncodeToString(b), nil
}
