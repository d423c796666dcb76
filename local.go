package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/hlog"
	"golang.org/x/crypto/bcrypt"
)

const decoyPassword = "decoy password"

// LocalProvider registers and authenticates username/password accounts.
type LocalProvider struct {
	Users  UserStore
	Hasher PasswordHasher

	decoyMu sync.Mutex
	decoy   []byte
}

func NewLocalProvider(users UserStore, hasher PasswordHasher) *LocalProvider {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	return &LocalProvider{Users: users, Hasher: hasher}
}

func (p *LocalProvider) Kind() ProviderKind { return ProviderLocal }

// Register creates a local account. A taken username, whether seen on lookup
// or lost to a concurrent insert, yields ErrDuplicateUsername.
func (p *LocalProvider) Register(ctx context.Context, creds Credentials) (*User, error) {
	creds = creds.Normalize()
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	_, err := p.Users.FindUser(ctx, IdentityFilter{Username: creds.Username})
	if err == nil {
		return nil, ErrDuplicateUsername
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := p.Hasher.Hash(creds.Password)
	if err != nil {
		return nil, err
	}
	user := IdentityFilter{Username: creds.Username}.NewUser()
	user.PasswordHash = hash
	if err := p.Users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrIdentityConflict) {
			return nil, ErrDuplicateUsername
		}
		return nil, err
	}
	return user, nil
}

// ResolveIdentity logs a local user in. Unknown usernames and wrong passwords
// both return ErrInvalidCredentials, and both pay for one hash verification.
func (p *LocalProvider) ResolveIdentity(ctx context.Context, proof Proof) (*User, error) {
	if proof.Kind != ProviderLocal {
		return nil, fmt.Errorf("local provider given a %s proof", proof.Kind)
	}
	creds := Credentials{Username: proof.Username, Password: proof.Password}.Normalize()
	if err := creds.Validate(); err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := p.Users.FindUser(ctx, IdentityFilter{Username: creds.Username})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			VerifyPassword(creds.Password, p.decoyHash())
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !VerifyPassword(creds.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login is ResolveIdentity for a username/password pair.
func (p *LocalProvider) Login(ctx context.Context, creds Credentials) (*User, error) {
	return p.ResolveIdentity(ctx, Proof{Kind: ProviderLocal, Username: creds.Username, Password: creds.Password})
}

// decoyHash is verified against when the username does not exist. If the
// configured hasher fails, a bcrypt hash is used instead so unknown users
// still pay for a verification. Nothing is cached until a hash succeeds.
func (p *LocalProvider) decoyHash() []byte {
	p.decoyMu.Lock()
	defer p.decoyMu.Unlock()
	if p.decoy != nil {
		return p.decoy
	}
	hash, err := p.Hasher.Hash(decoyPassword)
	if err != nil {
		hash, err = bcrypt.GenerateFromPassword([]byte(decoyPassword), bcrypt.DefaultCost)
	}
	if err == nil {
		p.decoy = hash
	}
	return hash
}

// HandleUserFunc is called once a request has been resolved to a user.
type HandleUserFunc func(user *User, w http.ResponseWriter, r *http.Request)

// AuthErrorHandler handles a failed login or signup. It returns false to fall
// back to the default redirect.
type AuthErrorHandler func(err error, w http.ResponseWriter, r *http.Request) bool

// LocalAuth serves the /login and /register form posts.
type LocalAuth struct {
	Provider *LocalProvider

	// Called after successful authentication or registration
	HandleUser HandleUserFunc

	// Optional hooks for failures; when nil or returning false the request is
	// redirected to LoginURL / SignupURL.
	OnLoginError  AuthErrorHandler
	OnSignupError AuthErrorHandler

	// Called for failures that are not a user's fault
	OnInternalError func(err error, w http.ResponseWriter, r *http.Request)

	LoginURL  string
	SignupURL string

	// Form field names
	UsernameField string
	PasswordField string
}

// ServeHTTP handles login form posts.
func (a *LocalAuth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	creds, err := a.parseForm(r)
	if err != nil {
		a.handleLoginError(ErrInvalidCredentials, w, r)
		return
	}

	user, err := a.Provider.Login(r.Context(), creds)
	if err != nil {
		if IsAuthFailure(err) {
			hlog.FromRequest(r).Info().Str("provider", string(ProviderLocal)).Msg("login rejected")
			a.handleLoginError(ErrInvalidCredentials, w, r)
		} else {
			a.internalError(err, w, r)
		}
		return
	}
	a.HandleUser(user, w, r)
}

// HandleSignup handles registration form posts.
func (a *LocalAuth) HandleSignup(w http.ResponseWriter, r *http.Request) {
	creds, err := a.parseForm(r)
	if err != nil {
		a.handleSignupError(err, w, r)
		return
	}

	user, err := a.Provider.Register(r.Context(), creds)
	if err != nil {
		if IsAuthFailure(err) {
			hlog.FromRequest(r).Info().Err(err).Msg("registration rejected")
			a.handleSignupError(err, w, r)
		} else {
			a.internalError(err, w, r)
		}
		return
	}
	hlog.FromRequest(r).Info().Str("user_id", user.ID).Msg("registered local user")
	a.HandleUser(user, w, r)
}

func (a *LocalAuth) parseForm(r *http.Request) (Credentials, error) {
	if err := r.ParseForm(); err != nil {
		return Credentials{}, ErrMissingField
	}
	creds := Credentials{
		Username: r.PostFormValue(a.getUsernameField()),
		Password: r.PostFormValue(a.getPasswordField()),
	}.Normalize()
	return creds, creds.Validate()
}

func (a *LocalAuth) getUsernameField() string {
	if a.UsernameField != "" {
		return a.UsernameField
	}
	return "username"
}

func (a *LocalAuth) getPasswordField() string {
	if a.PasswordField != "" {
		return a.PasswordField
	}
	return "password"
}

func (a *LocalAuth) handleLoginError(err error, w http.ResponseWriter, r *http.Request) {
	if a.OnLoginError != nil && a.OnLoginError(err, w, r) {
		return
	}
	http.Redirect(w, r, redirectOr(a.LoginURL, "/login"), http.StatusFound)
}

func (a *LocalAuth) handleSignupError(err error, w http.ResponseWriter, r *http.Request) {
	if a.OnSignupError != nil && a.OnSignupError(err, w, r) {
		return
	}
	http.Redirect(w, r, redirectOr(a.SignupURL, "/register"), http.StatusFound)
}

func (a *LocalAuth) internalError(err error, w http.ResponseWriter, r *http.Request) {
	if a.OnInternalError != nil {
		a.OnInternalError(err, w, r)
		return
	}
	hlog.FromRequest(r).Error().Err(err).Msg("local auth failed")
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func redirectOr(url, fallback string) string {
	if url != "" {
		return url
	}
	return fallback
}
