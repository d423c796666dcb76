package secrets

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"
)

// AuthState is the per-request authentication outcome.
type AuthState int

const (
	Unauthenticated AuthState = iota
	Authenticated
)

func (s AuthState) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

type authContextKey struct{}

type authContext struct {
	state AuthState
	user  *User
}

// Middleware resolves the session's user once per request and gates
// protected routes on it.
type Middleware struct {
	Sessions *SessionManager

	// Where EnsureUser sends unauthenticated requests. Defaults to /login.
	LoginURL string

	// Called when the session cannot be resolved for reasons other than an
	// invalid session. Defaults to a 500.
	OnError func(err error, w http.ResponseWriter, r *http.Request)
}

// ExtractUser loads the session's user into the request context. It never
// redirects; use EnsureUser for routes that require a user.
func (m *Middleware) ExtractUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, err := m.extract(r)
		if err != nil {
			m.fail(err, w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// EnsureUser lets only authenticated requests through; all others are
// redirected to the login page.
func (m *Middleware) EnsureUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, err := m.extract(r)
		if err != nil {
			m.fail(err, w, r)
			return
		}
		if !IsAuthenticated(r.Context()) {
			hlog.FromRequest(r).Debug().Str("path", r.URL.Path).Msg("unauthenticated request redirected")
			http.Redirect(w, r, redirectOr(m.LoginURL, "/login"), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extract is a no-op when an outer ExtractUser already ran.
func (m *Middleware) extract(r *http.Request) (*http.Request, error) {
	if _, ok := r.Context().Value(authContextKey{}).(*authContext); ok {
		return r, nil
	}
	ac := &authContext{state: Unauthenticated}
	user, err := m.Sessions.Deserialize(r.Context())
	switch {
	case err == nil:
		ac.state, ac.user = Authenticated, user
	case errors.Is(err, ErrSessionInvalid):
	default:
		return r, err
	}
	return r.WithContext(context.WithValue(r.Context(), authContextKey{}, ac)), nil
}

func (m *Middleware) fail(err error, w http.ResponseWriter, r *http.Request) {
	if m.OnError != nil {
		m.OnError(err, w, r)
		return
	}
	hlog.FromRequest(r).Error().Err(err).Msg("failed to resolve session")
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// AuthStateFrom returns the state recorded by ExtractUser or EnsureUser.
// Requests that passed through neither are Unauthenticated.
func AuthStateFrom(ctx context.Context) AuthState {
	if ac, ok := ctx.Value(authContextKey{}).(*authContext); ok {
		return ac.state
	}
	return Unauthenticated
}

func IsAuthenticated(ctx context.Context) bool {
	return AuthStateFrom(ctx) == Authenticated
}

// CurrentUser returns the authenticated user, or nil.
func CurrentUser(ctx context.Context) *User {
	if ac, ok := ctx.Value(authContextKey{}).(*authContext); ok && ac.state == Authenticated {
		return ac.user
	}
	return nil
}
