package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/stockforge/stockforge/internal/shared"
	_ "github.com/stockforge/stockforge/internal/testing/guard"
)

type memoryUserRepo struct {
	users map[string]User
}

func (r *memoryUserRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	u, ok := r.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &u, nil
}

func newUserRepo(t *testing.T, email, password string, active bool) *memoryUserRepo {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &memoryUserRepo{users: map[string]User{
		email: {ID: 7, Email: email, PasswordHash: string(hash), IsActive: active},
	}}
}

func newTokenStore(t *testing.T, ttl time.Duration) (*TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTokenStore(client, ttl), mr
}

func TestLoginIssuesResolvableToken(t *testing.T) {
	ctx := context.Background()
	tokens, _ := newTokenStore(t, time.Hour)
	svc := NewService(newUserRepo(t, "admin@stockforge.local", "swordfish1", true), tokens)

	user, token, err := svc.Login(ctx, "admin@stockforge.local", "swordfish1")
	require.NoError(t, err)
	require.Equal(t, int64(7), user.ID)
	require.NotEmpty(t, token)

	userID, err := svc.ResolveToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, int64(7), userID)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	tokens, _ := newTokenStore(t, time.Hour)
	svc := NewService(newUserRepo(t, "admin@stockforge.local", "swordfish1", true), tokens)

	_, _, err := svc.Login(ctx, "admin@stockforge.local", "wrong-password")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody@stockforge.local", "swordfish1")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	ctx := context.Background()
	tokens, _ := newTokenStore(t, time.Hour)
	svc := NewService(newUserRepo(t, "admin@stockforge.local", "swordfish1", false), tokens)

	_, _, err := svc.Login(ctx, "admin@stockforge.local", "swordfish1")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLogoutRevokesToken(t *testing.T) {
	ctx := context.Background()
	tokens, _ := newTokenStore(t, time.Hour)
	svc := NewService(newUserRepo(t, "admin@stockforge.local", "swordfish1", true), tokens)

	_, token, err := svc.Login(ctx, "admin@stockforge.local", "swordfish1")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, token))

	_, err = svc.ResolveToken(ctx, token)
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestTokenExpires(t *testing.T) {
	ctx := context.Background()
	tokens, mr := newTokenStore(t, time.Minute)

	token, err := tokens.Issue(ctx, 7)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = tokens.Resolve(ctx, token)
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}
