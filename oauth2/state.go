package oauth2

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const stateCookieName = "oauthstate"

// StateSigner binds the OAuth state parameter to the browser that started the
// flow. The state is an HS256 JWT carrying a random nonce and the provider
// name; the nonce is also set as a short lived cookie and both must agree on
// the callback.
type StateSigner struct {
	Key    []byte
	TTL    time.Duration
	Secure bool
}

func NewStateSigner(key []byte) *StateSigner {
	return &StateSigner{Key: key, TTL: 10 * time.Minute}
}

type stateClaims struct {
	Provider string `json:"prv"`
	jwt.RegisteredClaims
}

// Issue sets the nonce cookie and returns the signed state value.
func (s *StateSigner) Issue(w http.ResponseWriter, provider string) (string, error) {
	if len(s.Key) == 0 {
		return "", errors.New("oauth state signing key not set")
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating state nonce: %w", err)
	}
	nonce := base64.RawURLEncoding.EncodeToString(b)

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, stateClaims{
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl())),
		},
	})
	signed, err := token.SignedString(s.Key)
	if err != nil {
		return "", fmt.Errorf("signing state: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    nonce,
		Path:     "/",
		MaxAge:   int(s.ttl().Seconds()),
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return signed, nil
}

// Verify checks the request's state parameter against the nonce cookie and
// expires the cookie either way.
func (s *StateSigner) Verify(w http.ResponseWriter, r *http.Request, provider string) error {
	cookie, _ := r.Cookie(stateCookieName)
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/", MaxAge: -1})
	if cookie == nil || cookie.Value == "" {
		return fmt.Errorf("%w: missing state cookie", ErrInvalidState)
	}

	var claims stateClaims
	_, err := jwt.ParseWithClaims(r.FormValue("state"), &claims, func(t *jwt.Token) (any, error) {
		return s.Key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if claims.ID != cookie.Value {
		return fmt.Errorf("%w: nonce mismatch", ErrInvalidState)
	}
	if claims.Provider != provider {
		return fmt.Errorf("%w: issued for %q", ErrInvalidState, claims.Provider)
	}
	return nil
}

func (s *StateSigner) ttl() time.Duration {
	if s.TTL <= 0 {
		return 10 * time.Minute
	}
	return s.TTL
}
