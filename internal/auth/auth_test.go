package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/job-tracker/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 30, "job-tracker")
	profile := &domain.Profile{ID: "user-1", EmployeeID: "EMP1"}

	session, err := tm.GenerateToken(profile)
	require.NoError(t, err)
	assert.Equal(t, "user-1", session.UserID)
	assert.NotEmpty(t, session.TokenID)
	assert.Equal(t, 30*time.Minute, session.ExpiresAt.Sub(session.IssuedAt))

	claims, err := tm.ParseToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, session.TokenID, claims.ID)
	assert.Equal(t, "EMP1", claims.EmployeeID)

	rebuilt := SessionFromClaims(session.Token, claims)
	assert.Equal(t, session.TokenID, rebuilt.TokenID)
	assert.True(t, session.ExpiresAt.Equal(rebuilt.ExpiresAt))
}

func TestParseTokenRejects(t *testing.T) {
	tm := NewTokenManager("secret", 1, "job-tracker")
	session, err := tm.GenerateToken(&domain.Profile{ID: "user-1"})
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokenManager("other", 1, "job-tracker").ParseToken(session.Token)
		assert.Error(t, err)
	})
	t.Run("expired", func(t *testing.T) {
		late := NewTokenManager("secret", 1, "job-tracker")
		late.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		_, err := late.ParseToken(session.Token)
		assert.Error(t, err)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := tm.ParseToken("not-a-token")
		assert.Error(t, err)
	})
}

func TestPasswordHashing(t *testing.T) {
	hashed, err := HashPassword("correct horse", 4)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hashed, "correct horse"))
	assert.Error(t, ComparePassword(hashed, "wrong horse"))
}

func TestMemoryRevocationStore(t *testing.T) {
	store := NewMemoryRevocationStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "t1", time.Minute))
	revoked, err := store.IsRevoked(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, _ = store.IsRevoked(ctx, "t2")
	assert.False(t, revoked)

	now = now.Add(2 * time.Minute)
	revoked, _ = store.IsRevoked(ctx, "t1")
	assert.False(t, revoked, "entries lapse with the token")
}

func TestRedisRevocationStore(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	store := NewRedisRevocationStore(client, "auth:revoked:")
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "t1", time.Minute))
	assert.True(t, server.Exists("auth:revoked:t1"))
	assert.Equal(t, time.Minute, server.TTL("auth:revoked:t1"))

	revoked, err := store.IsRevoked(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, revoked)

	server.FastForward(2 * time.Minute)
	revoked, err = store.IsRevoked(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, "expired", 0))
	assert.False(t, server.Exists("auth:revoked:expired"))
}
