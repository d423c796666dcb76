package secrets_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/secrets"
	gormstore "github.com/panyam/secrets/stores/gorm"
)

// newTestStores returns SQLite backed stores in a temp dir.
func newTestStores(t *testing.T) (*gormstore.UserStore, *gormstore.SecretStore) {
	t.Helper()
	db, err := gormstore.OpenSQLite(filepath.Join(t.TempDir(), "secrets.db"))
	require.NoError(t, err)
	require.NoError(t, gormstore.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gormstore.NewUserStore(db), gormstore.NewSecretStore(db)
}

func TestFindOrCreate(t *testing.T) {
	ctx := context.Background()
	users, _ := newTestStores(t)

	u1, created, err := secrets.FindOrCreate(ctx, users, secrets.IdentityFilter{GoogleID: "g-1"})
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, u1.GoogleID)
	assert.Equal(t, "g-1", *u1.GoogleID)
	assert.Nil(t, u1.Username)
	assert.Nil(t, u1.FacebookID)
	assert.Empty(t, u1.Secrets)

	u2, created, err := secrets.FindOrCreate(ctx, users, secrets.IdentityFilter{GoogleID: "g-1"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u1.ID, u2.ID)

	// Same raw id from another provider is another identity.
	u3, created, err := secrets.FindOrCreate(ctx, users, secrets.IdentityFilter{FacebookID: "g-1"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, u1.ID, u3.ID)

	_, _, err = secrets.FindOrCreate(ctx, users, secrets.IdentityFilter{})
	assert.Error(t, err)
}

// racingStore reports not-found until a concurrent writer has "won", then
// finds the winner. It reproduces the lost insert deterministically.
type racingStore struct {
	secrets.UserStore
	winner    *secrets.User
	conflicts atomic.Int32
	always    bool
}

func (s *racingStore) FindUser(ctx context.Context, f secrets.IdentityFilter) (*secrets.User, error) {
	if s.conflicts.Load() > 0 && !s.always {
		return s.winner, nil
	}
	return nil, secrets.ErrUserNotFound
}

func (s *racingStore) CreateUser(ctx context.Context, u *secrets.User) error {
	s.conflicts.Add(1)
	return secrets.ErrIdentityConflict
}

func TestFindOrCreateRetriesAfterConflict(t *testing.T) {
	winner := secrets.IdentityFilter{GoogleID: "X"}.NewUser()
	store := &racingStore{winner: winner}

	u, created, err := secrets.FindOrCreate(context.Background(), store, secrets.IdentityFilter{GoogleID: "X"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner.ID, u.ID)
	assert.EqualValues(t, 1, store.conflicts.Load())
}

func TestFindOrCreateGivesUp(t *testing.T) {
	store := &racingStore{always: true}
	_, _, err := secrets.FindOrCreate(context.Background(), store, secrets.IdentityFilter{GoogleID: "X"})
	assert.ErrorIs(t, err, secrets.ErrStoreUnavailable)
	assert.EqualValues(t, 3, store.conflicts.Load())
}

func TestFindOrCreateStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &racingStore{always: true}
	_, _, err := secrets.FindOrCreate(ctx, store, secrets.IdentityFilter{GoogleID: "X"})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.EqualValues(t, 1, store.conflicts.Load())
}

type failingStore struct {
	secrets.UserStore
}

func (failingStore) FindUser(ctx context.Context, f secrets.IdentityFilter) (*secrets.User, error) {
	return nil, secrets.StoreError("find user", errors.New("connection refused"))
}

func TestFindOrCreateStoreFailure(t *testing.T) {
	_, _, err := secrets.FindOrCreate(context.Background(), failingStore{}, secrets.IdentityFilter{GoogleID: "X"})
	assert.ErrorIs(t, err, secrets.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}
