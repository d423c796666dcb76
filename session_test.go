package secrets_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/secrets"
	"github.com/panyam/secrets/stores/cachestore"
)

func newTestSessions(t *testing.T, users secrets.UserStore) *secrets.SessionManager {
	t.Helper()
	store, err := cachestore.New(context.Background(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return secrets.NewSessionManager(users, store, "session", time.Hour, false)
}

func loadSession(t *testing.T, sm *secrets.SessionManager) context.Context {
	t.Helper()
	ctx, err := sm.Session.Load(context.Background(), "")
	require.NoError(t, err)
	return ctx
}

func TestSessionRoundTrip(t *testing.T) {
	users, _ := newTestStores(t)
	sm := newTestSessions(t, users)
	u, _, err := secrets.FindOrCreate(context.Background(), users, secrets.IdentityFilter{GoogleID: "g"})
	require.NoError(t, err)

	ctx := loadSession(t, sm)
	_, err = sm.Deserialize(ctx)
	assert.ErrorIs(t, err, secrets.ErrSessionInvalid)

	require.NoError(t, sm.Serialize(ctx, u))
	assert.Equal(t, u.ID, sm.Session.GetString(ctx, "userId"))
	assert.Len(t, sm.Session.Keys(ctx), 1, "only the user id is stored")

	got, err := sm.Deserialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	t.Run("deleted user invalidates the session", func(t *testing.T) {
		require.NoError(t, users.DeleteUser(context.Background(), u.ID))
		_, err := sm.Deserialize(ctx)
		assert.ErrorIs(t, err, secrets.ErrSessionInvalid)
		assert.Empty(t, sm.Session.GetString(ctx, "userId"))
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, sm.Serialize(ctx, u))
		require.NoError(t, sm.Clear(ctx))
		assert.Empty(t, sm.Session.GetString(ctx, "userId"))
	})
}

func TestSerializeRenewsToken(t *testing.T) {
	users, _ := newTestStores(t)
	sm := newTestSessions(t, users)
	u, _, err := secrets.FindOrCreate(context.Background(), users, secrets.IdentityFilter{Username: "x"})
	require.NoError(t, err)

	// Commit an anonymous session so it has a token, then log in on it.
	ctx := loadSession(t, sm)
	sm.SetFlash(ctx, "hello")
	before, _, err := sm.Session.Commit(ctx)
	require.NoError(t, err)

	ctx, err = sm.Session.Load(context.Background(), before)
	require.NoError(t, err)
	require.NoError(t, sm.Serialize(ctx, u))
	after, _, err := sm.Session.Commit(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
	assert.Equal(t, "hello", sm.PopFlash(ctx))
	assert.Empty(t, sm.PopFlash(ctx))
}

func TestSerializeRejectsUserWithoutId(t *testing.T) {
	users, _ := newTestStores(t)
	sm := newTestSessions(t, users)
	assert.Error(t, sm.Serialize(loadSession(t, sm), &secrets.User{}))
}

func TestGate(t *testing.T) {
	users, _ := newTestStores(t)
	sm := newTestSessions(t, users)
	m := &secrets.Middleware{Sessions: sm}
	u, _, err := secrets.FindOrCreate(context.Background(), users, secrets.IdentityFilter{FacebookID: "f"})
	require.NoError(t, err)

	var seen secrets.AuthState
	var seenUser *secrets.User
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = secrets.AuthStateFrom(r.Context())
		seenUser = secrets.CurrentUser(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	serve := func(h http.Handler, ctx context.Context) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/secrets", nil).WithContext(ctx))
		return rr
	}

	t.Run("anonymous", func(t *testing.T) {
		ctx := loadSession(t, sm)
		rr := serve(m.ExtractUser(inner), ctx)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, secrets.Unauthenticated, seen)
		assert.Nil(t, seenUser)

		rr = serve(m.EnsureUser(inner), ctx)
		assert.Equal(t, http.StatusFound, rr.Code)
		assert.Equal(t, "/login", rr.Header().Get("Location"))
	})

	t.Run("logged in", func(t *testing.T) {
		ctx := loadSession(t, sm)
		require.NoError(t, sm.Serialize(ctx, u))
		rr := serve(m.EnsureUser(inner), ctx)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, secrets.Authenticated, seen)
		require.NotNil(t, seenUser)
		assert.Equal(t, u.ID, seenUser.ID)
	})

	t.Run("user deleted after login", func(t *testing.T) {
		ctx := loadSession(t, sm)
		require.NoError(t, sm.Serialize(ctx, u))
		require.NoError(t, users.DeleteUser(context.Background(), u.ID))
		rr := serve(m.EnsureUser(inner), ctx)
		assert.Equal(t, http.StatusFound, rr.Code)
		assert.Equal(t, "/login", rr.Header().Get("Location"))
	})

	t.Run("context without the gate", func(t *testing.T) {
		assert.False(t, secrets.IsAuthenticated(context.Background()))
		assert.Nil(t, secrets.CurrentUser(context.Background()))
		assert.Equal(t, "unauthenticated", secrets.AuthStateFrom(context.Background()).String())
	})
}

type brokenUsers struct {
	secrets.UserStore
}

func (brokenUsers) GetUserById(ctx context.Context, id string) (*secrets.User, error) {
	return nil, secrets.StoreError("get user", context.DeadlineExceeded)
}

func TestGateStoreFailure(t *testing.T) {
	sm := newTestSessions(t, brokenUsers{})
	m := &secrets.Middleware{Sessions: sm}
	ctx := loadSession(t, sm)
	require.NoError(t, sm.Serialize(ctx, &secrets.User{ID: "u1"}))

	called := false
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secrets", nil).WithContext(ctx)
	m.EnsureUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })).ServeHTTP(rr, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
