//go:build !wasm
// +build !wasm

package gorm_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/secrets"
	gormstore "github.com/panyam/secrets/stores/gorm"
)

func openTestDB(t *testing.T) (*gormstore.UserStore, *gormstore.SecretStore, *gormstore.SessionStore) {
	t.Helper()
	db, err := gormstore.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, gormstore.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gormstore.NewUserStore(db), gormstore.NewSecretStore(db), gormstore.NewSessionStore(db)
}

func TestUserStore(t *testing.T) {
	ctx := context.Background()
	users, _, _ := openTestDB(t)

	alice := secrets.IdentityFilter{Username: "alice"}.NewUser()
	alice.PasswordHash = []byte("hash")
	require.NoError(t, users.CreateUser(ctx, alice))

	t.Run("get by id", func(t *testing.T) {
		got, err := users.GetUserById(ctx, alice.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Username)
		assert.Equal(t, "alice", *got.Username)
		assert.Equal(t, []byte("hash"), got.PasswordHash)
		assert.Nil(t, got.GoogleID)
		assert.Empty(t, got.Secrets)
	})

	t.Run("find by username", func(t *testing.T) {
		got, err := users.FindUser(ctx, secrets.IdentityFilter{Username: "alice"})
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := users.GetUserById(ctx, "nope")
		assert.ErrorIs(t, err, secrets.ErrUserNotFound)
		_, err = users.FindUser(ctx, secrets.IdentityFilter{GoogleID: "nope"})
		assert.ErrorIs(t, err, secrets.ErrUserNotFound)
	})

	t.Run("duplicate username conflicts", func(t *testing.T) {
		dup := secrets.IdentityFilter{Username: "alice"}.NewUser()
		err := users.CreateUser(ctx, dup)
		assert.ErrorIs(t, err, secrets.ErrIdentityConflict)
	})

	t.Run("users without a field do not collide", func(t *testing.T) {
		g1 := secrets.IdentityFilter{GoogleID: "g-1"}.NewUser()
		g2 := secrets.IdentityFilter{GoogleID: "g-2"}.NewUser()
		require.NoError(t, users.CreateUser(ctx, g1))
		require.NoError(t, users.CreateUser(ctx, g2))
	})

	t.Run("user needs an identity", func(t *testing.T) {
		err := users.CreateUser(ctx, &secrets.User{ID: secrets.NewUserId()})
		assert.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		u := secrets.IdentityFilter{FacebookID: "fb-1"}.NewUser()
		require.NoError(t, users.CreateUser(ctx, u))
		require.NoError(t, users.DeleteUser(ctx, u.ID))
		_, err := users.GetUserById(ctx, u.ID)
		assert.ErrorIs(t, err, secrets.ErrUserNotFound)
		assert.ErrorIs(t, users.DeleteUser(ctx, u.ID), secrets.ErrUserNotFound)

		// the identity is free again
		again := secrets.IdentityFilter{FacebookID: "fb-1"}.NewUser()
		assert.NoError(t, users.CreateUser(ctx, again))
	})
}

func TestConcurrentFindOrCreate(t *testing.T) {
	ctx := context.Background()
	users, _, _ := openTestDB(t)

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			u, _, err := secrets.FindOrCreate(ctx, users, secrets.IdentityFilter{GoogleID: "X"})
			errs[i] = err
			if u != nil {
				ids[i] = u.ID
			}
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	n, err := users.CountUsers(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSecretStore(t *testing.T) {
	ctx := context.Background()
	users, store, _ := openTestDB(t)

	_, err := store.RandomSecret(ctx)
	assert.ErrorIs(t, err, secrets.ErrNoSecrets)

	u := secrets.IdentityFilter{Username: "bob"}.NewUser()
	require.NoError(t, users.CreateUser(ctx, u))

	s1, err := store.SubmitSecret(ctx, u.ID, "the sky is not blue")
	require.NoError(t, err)
	assert.NotEmpty(t, s1.ID)
	_, err = store.SubmitSecret(ctx, u.ID, "second")
	require.NoError(t, err)

	got, err := users.GetUserById(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"the sky is not blue", "second"}, got.Secrets)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		s, err := store.RandomSecret(ctx)
		require.NoError(t, err)
		seen[s.Text] = true
	}
	assert.True(t, seen["the sky is not blue"])
	assert.True(t, seen["second"])

	t.Run("unknown user", func(t *testing.T) {
		_, err := store.SubmitSecret(ctx, "ghost", "boo")
		assert.ErrorIs(t, err, secrets.ErrUserNotFound)
	})

	t.Run("global copy outlives the user", func(t *testing.T) {
		require.NoError(t, users.DeleteUser(ctx, u.ID))
		_, err := store.RandomSecret(ctx)
		assert.NoError(t, err)
	})
}

func TestSessionStore(t *testing.T) {
	_, _, sessions := openTestDB(t)

	_, found, err := sessions.Find("tok")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, sessions.Commit("tok", []byte("v1"), time.Now().Add(time.Hour)))
	require.NoError(t, sessions.Commit("tok", []byte("v2"), time.Now().Add(time.Hour)))
	b, found, err := sessions.Find("tok")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v2"), b)

	require.NoError(t, sessions.Delete("tok"))
	_, found, err = sessions.Find("tok")
	require.NoError(t, err)
	assert.False(t, found)

	t.Run("expired sessions are not found", func(t *testing.T) {
		require.NoError(t, sessions.Commit("old", []byte("x"), time.Now().Add(-time.Minute)))
		_, found, err := sessions.Find("old")
		require.NoError(t, err)
		assert.False(t, found)

		n, err := sessions.DeleteExpired(context.Background())
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})
}
