package secrets

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/panyam/secrets/oauth2"
)

// Generic messages shown after a failed form post. Login failures share one
// message whatever the cause.
const (
	flashInvalidLogin  = "Invalid username or password."
	flashUsernameTaken = "That username is already registered."
	flashMissingField  = "Username and password are required."
	flashOAuthFailed   = "Could not sign you in with that provider."
	flashEmptySecret   = "A secret cannot be empty."
)

// OAuthClient holds the registered application credentials for a provider.
// A zero value disables the provider.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
}

func (c OAuthClient) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// AppConfig carries everything App needs. Users and Secrets are required.
type AppConfig struct {
	Users   UserStore
	Secrets SecretStore

	// Session storage; nil keeps sessions in scs's default memory store
	SessionStore    scs.Store
	SessionCookie   string
	SessionLifetime time.Duration
	SecureCookies   bool

	// Signs the OAuth state parameter
	StateKey []byte

	// External URL of the app, used to build OAuth callback URLs
	BaseURL string

	Google   OAuthClient
	Facebook OAuthClient

	// Used for token exchange and profile fetches; nil means the default
	OAuthHTTPClient *http.Client

	Hasher   PasswordHasher
	Renderer Renderer
	Logger   *zerolog.Logger
}

// App is the secrets web application: session authentication in front of
// the secret submit/read pages.
type App struct {
	Users      UserStore
	Secrets    SecretStore
	Sessions   *SessionManager
	Middleware *Middleware
	Local      *LocalAuth
	Resolvers  Resolvers
	OAuth      map[ProviderKind]*oauth2.Provider
	Renderer   Renderer
	Logger     zerolog.Logger

	router *mux.Router
}

func NewApp(cfg AppConfig) (*App, error) {
	if cfg.Users == nil || cfg.Secrets == nil {
		return nil, errors.New("app needs a user store and a secret store")
	}
	a := &App{
		Users:    cfg.Users,
		Secrets:  cfg.Secrets,
		Renderer: cfg.Renderer,
		Logger:   log.Logger,
		OAuth:    map[ProviderKind]*oauth2.Provider{},
	}
	if cfg.Logger != nil {
		a.Logger = *cfg.Logger
	}
	if a.Renderer == nil {
		r, err := NewTemplateRenderer()
		if err != nil {
			return nil, err
		}
		a.Renderer = r
	}

	a.Sessions = NewSessionManager(cfg.Users, cfg.SessionStore, redirectOr(cfg.SessionCookie, "session"), cfg.SessionLifetime, cfg.SecureCookies)
	a.Middleware = &Middleware{Sessions: a.Sessions, LoginURL: "/login", OnError: a.serverError}

	local := NewLocalProvider(cfg.Users, cfg.Hasher)
	a.Local = &LocalAuth{
		Provider:        local,
		HandleUser:      a.onAuthenticated,
		OnLoginError:    a.onLoginError,
		OnSignupError:   a.onSignupError,
		OnInternalError: a.serverError,
		LoginURL:        "/login",
		SignupURL:       "/register",
	}
	resolvers := []IdentityResolver{local}

	if cfg.Google.Enabled() || cfg.Facebook.Enabled() {
		if len(cfg.StateKey) == 0 {
			return nil, errors.New("oauth providers need a state signing key")
		}
	}
	state := oauth2.NewStateSigner(cfg.StateKey)
	state.Secure = cfg.SecureCookies
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Google.Enabled() {
		p := oauth2.NewGoogle(cfg.Google.ClientID, cfg.Google.ClientSecret, baseURL+"/auth/google/secrets")
		a.addOAuth(ProviderGoogle, p, state, cfg.OAuthHTTPClient)
		resolvers = append(resolvers, NewGoogleProvider(cfg.Users))
	}
	if cfg.Facebook.Enabled() {
		p := oauth2.NewFacebook(cfg.Facebook.ClientID, cfg.Facebook.ClientSecret, baseURL+"/auth/facebook/secrets")
		a.addOAuth(ProviderFacebook, p, state, cfg.OAuthHTTPClient)
		resolvers = append(resolvers, NewFacebookProvider(cfg.Users))
	}
	a.Resolvers = NewResolvers(resolvers...)
	return a, nil
}

func (a *App) addOAuth(kind ProviderKind, p *oauth2.Provider, state *oauth2.StateSigner, client *http.Client) {
	p.State = state
	p.HTTPClient = client
	p.HandleUser = a.onOAuthUser
	p.HandleError = a.onOAuthError
	a.OAuth[kind] = p
}

// Handler returns the application with its middleware stack.
func (a *App) Handler() http.Handler {
	var h http.Handler = a.setupRoutes().router
	h = a.Sessions.Session.LoadAndSave(h)
	h = middleware.Recoverer(h)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})(h)
	h = hlog.RemoteAddrHandler("ip")(h)
	h = hlog.RequestIDHandler("req_id", "X-Request-Id")(h)
	h = hlog.NewHandler(a.Logger)(h)
	h = middleware.RealIP(h)
	return h
}

func (a *App) setupRoutes() *App {
	if a.router != nil {
		return a
	}
	r := mux.NewRouter()
	r.Handle("/healthz", http.HandlerFunc(a.healthz)).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(StaticHandler()).Methods(http.MethodGet, http.MethodHead)

	pages := r.PathPrefix("/").Subrouter()
	pages.Use(middleware.NoCache, a.Middleware.ExtractUser)
	pages.HandleFunc("/", a.page("home")).Methods(http.MethodGet)
	pages.HandleFunc("/login", a.guestPage("login")).Methods(http.MethodGet)
	pages.Handle("/login", a.Local).Methods(http.MethodPost)
	pages.HandleFunc("/register", a.guestPage("register")).Methods(http.MethodGet)
	pages.HandleFunc("/register", a.Local.HandleSignup).Methods(http.MethodPost)
	pages.HandleFunc("/logout", a.logout).Methods(http.MethodGet)
	for kind, p := range a.OAuth {
		pages.HandleFunc("/auth/"+string(kind), p.Redirect).Methods(http.MethodGet)
		pages.HandleFunc("/auth/"+string(kind)+"/secrets", p.Callback).Methods(http.MethodGet)
	}

	gated := pages.NewRoute().Subrouter()
	gated.Use(a.Middleware.EnsureUser)
	gated.HandleFunc("/secrets", a.showSecret).Methods(http.MethodGet)
	gated.HandleFunc("/submit", a.page("submit")).Methods(http.MethodGet)
	gated.HandleFunc("/submit", a.submitSecret).Methods(http.MethodPost)

	a.router = r
	return a
}

func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

func (a *App) viewData(r *http.Request) *ViewData {
	providers := map[string]bool{}
	for kind := range a.OAuth {
		providers[string(kind)] = true
	}
	return &ViewData{
		Authenticated: IsAuthenticated(r.Context()),
		User:          CurrentUser(r.Context()),
		Flash:         a.Sessions.PopFlash(r.Context()),
		Providers:     providers,
	}
}

func (a *App) render(w http.ResponseWriter, r *http.Request, name string, data *ViewData) {
	if err := a.Renderer.Render(w, name, data); err != nil {
		a.serverError(err, w, r)
	}
}

func (a *App) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.render(w, r, name, a.viewData(r))
	}
}

// guestPage renders a login/register form, or sends an already
// authenticated user on to their secrets.
func (a *App) guestPage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if IsAuthenticated(r.Context()) {
			http.Redirect(w, r, "/secrets", http.StatusFound)
			return
		}
		a.render(w, r, name, a.viewData(r))
	}
}

func (a *App) logout(w http.ResponseWriter, r *http.Request) {
	if user := CurrentUser(r.Context()); user != nil {
		hlog.FromRequest(r).Info().Str("user_id", user.ID).Msg("logging out")
	}
	if err := a.Sessions.Clear(r.Context()); err != nil {
		a.serverError(err, w, r)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (a *App) showSecret(w http.ResponseWriter, r *http.Request) {
	data := a.viewData(r)
	secret, err := a.Secrets.RandomSecret(r.Context())
	if err != nil && !errors.Is(err, ErrNoSecrets) {
		a.serverError(err, w, r)
		return
	}
	data.Secret = secret
	a.render(w, r, "secrets", data)
}

func (a *App) submitSecret(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	text := strings.TrimSpace(r.PostFormValue("secret"))
	if text == "" {
		a.Sessions.SetFlash(r.Context(), flashEmptySecret)
		http.Redirect(w, r, "/submit", http.StatusFound)
		return
	}
	if _, err := a.Secrets.SubmitSecret(r.Context(), user.ID, text); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		a.serverError(err, w, r)
		return
	}
	hlog.FromRequest(r).Info().Str("user_id", user.ID).Msg("secret submitted")
	http.Redirect(w, r, "/secrets", http.StatusFound)
}

// onAuthenticated starts the session for a freshly resolved user.
func (a *App) onAuthenticated(user *User, w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Serialize(r.Context(), user); err != nil {
		a.serverError(err, w, r)
		return
	}
	hlog.FromRequest(r).Info().Str("user_id", user.ID).Msg("logged in")
	http.Redirect(w, r, "/secrets", http.StatusFound)
}

func (a *App) onLoginError(err error, w http.ResponseWriter, r *http.Request) bool {
	a.Sessions.SetFlash(r.Context(), flashInvalidLogin)
	return false
}

func (a *App) onSignupError(err error, w http.ResponseWriter, r *http.Request) bool {
	if errors.Is(err, ErrDuplicateUsername) {
		a.Sessions.SetFlash(r.Context(), flashUsernameTaken)
	} else {
		a.Sessions.SetFlash(r.Context(), flashMissingField)
	}
	return false
}

func (a *App) onOAuthUser(provider string, profileId string, w http.ResponseWriter, r *http.Request) {
	user, err := a.Resolvers.Resolve(r.Context(), Proof{Kind: ProviderKind(provider), ProviderUserId: profileId})
	if err != nil {
		a.serverError(err, w, r)
		return
	}
	a.onAuthenticated(user, w, r)
}

func (a *App) onOAuthError(provider string, err error, w http.ResponseWriter, r *http.Request) {
	if errors.Is(err, oauth2.ErrUpstream) {
		a.serverError(fmt.Errorf("%w: %w", ErrProviderUnavailable, err), w, r)
		return
	}
	hlog.FromRequest(r).Info().Err(err).Str("provider", provider).Msg("oauth sign in rejected")
	a.Sessions.SetFlash(r.Context(), flashOAuthFailed)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// serverError logs err and answers 502 for provider outages, 500 otherwise.
func (a *App) serverError(err error, w http.ResponseWriter, r *http.Request) {
	status := http.StatusInternalServerError
	if errors.Is(err, ErrProviderUnavailable) {
		status = http.StatusBadGateway
	}
	hlog.FromRequest(r).Error().Err(err).Int("status", status).Msg("request failed")
	http.Error(w, http.StatusText(status), status)
}
