package auth

import (
	"context"
	"time"

	"civicreport/internal/cache"
)

const revokedSessionKeyPrefix = "revoked:session:"

// TokenStoreInterface defines the interface for session revocation.
type TokenStoreInterface interface {
	RevokeSession(ctx context.Context, tokenID string, ttl time.Duration) error
	IsSessionRevoked(ctx context.Context, tokenID string) (bool, error)
}

// TokenStore keeps revoked session IDs in Redis until the token would have expired.
type TokenStore struct {
	cache *cache.Client
}

// Ensure TokenStore implements TokenStoreInterface
var _ TokenStoreInterface = (*TokenStore)(nil)

// NewTokenStore creates a new token store.
func NewTokenStore(cache *cache.Client) *TokenStore {
	return &TokenStore{cache: cache}
}

// RevokeSession blacklists a session token ID for ttl.
func (s *TokenStore) RevokeSession(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.cache.Set(ctx, revokedSessionKeyPrefix+tokenID, []byte("1"), ttl)
}

// IsSessionRevoked checks the blacklist. An unreachable Redis reports not revoked.
func (s *TokenStore) IsSessionRevoked(ctx context.Context, tokenID string) (bool, error) {
	data, err := s.cache.Get(ctx, revokedSessionKeyPrefix+tokenID)
	if err != nil {
		return false, nil
	}
	return data != nil, nil
}
