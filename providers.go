package secrets

import (
	"context"
	"fmt"
)

// ProviderKind tags the credential method a Proof was produced by.
type ProviderKind string

const (
	ProviderLocal    ProviderKind = "local"
	ProviderGoogle   ProviderKind = "google"
	ProviderFacebook ProviderKind = "facebook"
)

// Proof is the provider specific evidence of identity. Local proofs carry
// Username and Password; OAuth proofs carry the ProviderUserId returned by
// the provider's profile endpoint.
type Proof struct {
	Kind           ProviderKind
	Username       string
	Password       string
	ProviderUserId string
}

// IdentityResolver turns a proof into the canonical user.
type IdentityResolver interface {
	Kind() ProviderKind
	ResolveIdentity(ctx context.Context, proof Proof) (*User, error)
}

// Resolvers selects an IdentityResolver by the proof's kind.
type Resolvers map[ProviderKind]IdentityResolver

func NewResolvers(resolvers ...IdentityResolver) Resolvers {
	out := make(Resolvers, len(resolvers))
	for _, r := range resolvers {
		out[r.Kind()] = r
	}
	return out
}

func (rs Resolvers) Resolve(ctx context.Context, proof Proof) (*User, error) {
	r, ok := rs[proof.Kind]
	if !ok {
		return nil, fmt.Errorf("no resolver for provider %q", proof.Kind)
	}
	return r.ResolveIdentity(ctx, proof)
}

// OAuthProvider resolves a provider issued profile id to a user, creating one
// the first time the id is seen.
type OAuthProvider struct {
	kind  ProviderKind
	Users UserStore
}

func NewGoogleProvider(users UserStore) *OAuthProvider {
	return &OAuthProvider{kind: ProviderGoogle, Users: users}
}

func NewFacebookProvider(users UserStore) *OAuthProvider {
	return &OAuthProvider{kind: ProviderFacebook, Users: users}
}

func (p *OAuthProvider) Kind() ProviderKind { return p.kind }

func (p *OAuthProvider) ResolveIdentity(ctx context.Context, proof Proof) (*User, error) {
	if proof.Kind != p.kind {
		return nil, fmt.Errorf("%s provider given a %s proof", p.kind, proof.Kind)
	}
	if proof.ProviderUserId == "" {
		return nil, fmt.Errorf("%w: %s returned no profile id", ErrProviderUnavailable, p.kind)
	}

	var filter IdentityFilter
	switch p.kind {
	case ProviderGoogle:
		filter.GoogleID = proof.ProviderUserId
	case ProviderFacebook:
		filter.FacebookID = proof.ProviderUserId
	default:
		return nil, fmt.Errorf("unsupported oauth provider %q", p.kind)
	}

	user, _, err := FindOrCreate(ctx, p.Users, filter)
	if err != nil {
		return nil, fmt.Errorf("resolve %s identity: %w", p.kind, err)
	}
	return user, nil
}
