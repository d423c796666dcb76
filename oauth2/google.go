package oauth2

import (
	"golang.org/x/oauth2/google"
)

const GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// NewGoogle returns a Provider for Google sign-in. Only the profile scope is
// requested; the account id is all that is kept.
func NewGoogle(clientId, clientSecret, callbackUrl string) *Provider {
	p := NewProvider("google", clientId, clientSecret, callbackUrl, google.Endpoint,
		"https://www.googleapis.com/auth/userinfo.profile")
	p.UserInfoURL = GoogleUserInfoURL
	return p
}
