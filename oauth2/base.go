package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/hlog"
	"golang.org/x/oauth2"
)

var (
	// ErrInvalidState means the callback's state did not verify against the
	// browser's state cookie.
	ErrInvalidState = errors.New("invalid oauth state")

	// ErrAccessDenied means the user declined consent or presented a code
	// the provider would not exchange.
	ErrAccessDenied = errors.New("oauth access denied")

	// ErrUpstream means the provider could not be reached or answered with
	// something other than a profile.
	ErrUpstream = errors.New("oauth provider unavailable")
)

// HandleUserFunc receives the provider issued profile id after a completed
// handshake.
type HandleUserFunc func(provider string, profileId string, w http.ResponseWriter, r *http.Request)

// HandleErrorFunc receives handshake failures. err matches one of
// ErrInvalidState, ErrAccessDenied or ErrUpstream.
type HandleErrorFunc func(provider string, err error, w http.ResponseWriter, r *http.Request)

// Provider runs the authorization code flow against one OAuth2 provider and
// reduces the result to the provider's stable user id.
type Provider struct {
	Name string

	// UserInfoURL returns a JSON object with an "id" field for the token's
	// owner. Overridable for tests.
	UserInfoURL string

	// HTTPClient is used for token exchange and profile fetch. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client

	State       *StateSigner
	HandleUser  HandleUserFunc
	HandleError HandleErrorFunc

	oauthConfig oauth2.Config
}

func NewProvider(name, clientId, clientSecret, callbackUrl string, endpoint oauth2.Endpoint, scopes ...string) *Provider {
	return &Provider{
		Name: name,
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
	}
}

func (p *Provider) SetHTTPClient(client *http.Client) {
	p.HTTPClient = client
}

// SetOAuthEndpoint replaces the provider's auth and token URLs.
func (p *Provider) SetOAuthEndpoint(endpoint oauth2.Endpoint) {
	p.oauthConfig.Endpoint = endpoint
}

func (p *Provider) Config() oauth2.Config {
	return p.oauthConfig
}

// Redirect sends the browser to the provider's consent page.
func (p *Provider) Redirect(w http.ResponseWriter, r *http.Request) {
	state, err := p.State.Issue(w, p.Name)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("provider", p.Name).Msg("failed to issue oauth state")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, p.oauthConfig.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the flow the provider redirected back with.
func (p *Provider) Callback(w http.ResponseWriter, r *http.Request) {
	if err := p.State.Verify(w, r, p.Name); err != nil {
		p.fail(err, w, r)
		return
	}
	if reason := r.FormValue("error"); reason != "" {
		p.fail(fmt.Errorf("%w: %s", ErrAccessDenied, reason), w, r)
		return
	}
	code := r.FormValue("code")
	if code == "" {
		p.fail(fmt.Errorf("%w: no authorization code", ErrAccessDenied), w, r)
		return
	}

	profileId, err := p.Exchange(r.Context(), code)
	if err != nil {
		p.fail(err, w, r)
		return
	}
	p.HandleUser(p.Name, profileId, w, r)
}

// Exchange trades code for a token and returns the profile id it belongs to.
func (p *Provider) Exchange(ctx context.Context, code string) (string, error) {
	if p.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.HTTPClient)
	}
	token, err := p.oauthConfig.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500 {
			return "", fmt.Errorf("%w: %w", ErrAccessDenied, err)
		}
		return "", fmt.Errorf("%w: code exchange: %w", ErrUpstream, err)
	}
	return p.fetchProfileId(ctx, token)
}

func (p *Provider) fetchProfileId(ctx context.Context, token *oauth2.Token) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	resp, err := p.oauthConfig.Client(ctx, token).Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: failed getting user info: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: failed reading user info: %w", ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: user info returned %d", ErrUpstream, resp.StatusCode)
	}

	var profile struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return "", fmt.Errorf("%w: decoding user info: %w", ErrUpstream, err)
	}
	id := profileIdString(profile.ID)
	if id == "" {
		return "", fmt.Errorf("%w: user info has no id", ErrUpstream)
	}
	return id, nil
}

// profileIdString accepts ids encoded as JSON strings or numbers.
func profileIdString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func (p *Provider) fail(err error, w http.ResponseWriter, r *http.Request) {
	if p.HandleError != nil {
		p.HandleError(p.Name, err, w, r)
		return
	}
	hlog.FromRequest(r).Warn().Err(err).Str("provider", p.Name).Msg("oauth callback failed")
	if errors.Is(err, ErrUpstream) {
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}
