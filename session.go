package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
)

const (
	defaultSessionKey = "userId"
	flashKey          = "flash"
)

// SessionManager attaches a user to the scs session and reads it back. Only
// the user id is stored; the user is re-fetched on every Deserialize so a
// deleted or changed user is never served from the cookie.
type SessionManager struct {
	Session *scs.SessionManager
	Users   UserStore

	// Session key holding the user id. Defaults to "userId".
	Key string
}

// NewSessionManager returns a SessionManager around an scs manager using
// store, with a session cookie of the given name and lifetime.
func NewSessionManager(users UserStore, store scs.Store, cookieName string, lifetime time.Duration, secure bool) *SessionManager {
	sm := scs.New()
	if store != nil {
		sm.Store = store
	}
	if cookieName != "" {
		sm.Cookie.Name = cookieName
	}
	if lifetime > 0 {
		sm.Lifetime = lifetime
	}
	sm.Cookie.HttpOnly = true
	sm.Cookie.Path = "/"
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = secure
	return &SessionManager{Session: sm, Users: users, Key: defaultSessionKey}
}

func (s *SessionManager) key() string {
	if s.Key == "" {
		return defaultSessionKey
	}
	return s.Key
}

// Serialize records user as the session's authenticated principal. The
// session token is renewed first so a pre-login token cannot be fixated.
func (s *SessionManager) Serialize(ctx context.Context, user *User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("serialize session: user has no id")
	}
	if err := s.Session.RenewToken(ctx); err != nil {
		return StoreError("renew session token", err)
	}
	s.Session.Put(ctx, s.key(), user.ID)
	return nil
}

// Deserialize loads the session's user. A session without a user id, or with
// an id that no longer resolves, reports ErrSessionInvalid and the stale id
// is dropped.
func (s *SessionManager) Deserialize(ctx context.Context) (*User, error) {
	userId := s.Session.GetString(ctx, s.key())
	if userId == "" {
		return nil, ErrSessionInvalid
	}
	user, err := s.Users.GetUserById(ctx, userId)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.Session.Remove(ctx, s.key())
			return nil, ErrSessionInvalid
		}
		if errors.Is(err, ErrStoreUnavailable) {
			return nil, err
		}
		return nil, StoreError("deserialize session", err)
	}
	return user, nil
}

// Clear destroys the session.
func (s *SessionManager) Clear(ctx context.Context) error {
	if err := s.Session.Destroy(ctx); err != nil {
		return StoreError("destroy session", err)
	}
	return nil
}

// SetFlash stores a one-shot message shown on the next rendered page.
func (s *SessionManager) SetFlash(ctx context.Context, msg string) {
	s.Session.Put(ctx, flashKey, msg)
}

// PopFlash returns and removes the pending flash message.
func (s *SessionManager) PopFlash(ctx context.Context) string {
	return s.Session.PopString(ctx, flashKey)
}
