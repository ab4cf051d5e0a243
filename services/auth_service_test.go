package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"qteams/store"
	"qteams/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_RegisterAndLogin(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewAuthService(store.New(db), "secret", time.Hour)
	ctx := context.Background()

	resp, err := svc.Register(ctx, &RegisterRequest{Username: " alice ", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.User.Username)
	assert.NotEqual(t, "hunter22", resp.User.PasswordHash)
	assert.NotEmpty(t, resp.Token)

	_, err = svc.Register(ctx, &RegisterRequest{Username: "alice", Password: "another1"})
	assert.True(t, IsValidation(err), "got %v", err)

	_, err = svc.Register(ctx, &RegisterRequest{Username: "bob", Password: "short"})
	assert.True(t, IsValidation(err), "got %v", err)

	login, err := svc.Login(ctx, &LoginRequest{Username: "alice", Password: "hunter22"})
	require.NoError(t, err)
	claims, err := svc.ParseToken(login.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)

	_, err = svc.Login(ctx, &LoginRequest{Username: "alice", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, &LoginRequest{Username: "nobody", Password: "hunter22"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	user, err := svc.GetUser(ctx, claims.UserID)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
}

func TestAuthService_ParseToken(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "carol")
	svc := NewAuthService(store.New(db), "secret", time.Hour)

	token, err := svc.GenerateToken(user)
	require.NoError(t, err)

	other := NewAuthService(store.New(db), "other-secret", time.Hour)
	_, err = other.ParseToken(token)
	assert.True(t, errors.Is(err, ErrInvalidCredentials), "got %v", err)

	_, err = svc.ParseToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	expired := NewAuthService(store.New(db), "secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.GenerateToken(user)
	require.NoError(t, err)
	_, err = svc.ParseToken(old)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
