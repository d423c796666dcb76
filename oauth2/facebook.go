package oauth2

import (
	"golang.org/x/oauth2/facebook"
)

const FacebookUserInfoURL = "https://graph.facebook.com/me?fields=id"

// NewFacebook returns a Provider for Facebook login using the default
// public_profile permission.
func NewFacebook(clientId, clientSecret, callbackUrl string) *Provider {
	p := NewProvider("facebook", clientId, clientSecret, callbackUrl, facebook.Endpoint)
	p.UserInfoURL = FacebookUserInfoURL
	return p
}
