//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	"github.com/panyam/secrets"
)

// UserEntity is the Datastore entity for users. Key name is the user id.
type UserEntity struct {
	Key          *datastore.Key `datastore:"__key__"`
	Username     string         `datastore:"username,omitempty"`
	PasswordHash []byte         `datastore:"password_hash,noindex"`
	GoogleID     string         `datastore:"google_id,omitempty"`
	FacebookID   string         `datastore:"facebook_id,omitempty"`
	Secrets      []string       `datastore:"secrets,noindex"`
	CreatedAt    time.Time      `datastore:"created_at"`
	Version      int            `datastore:"version"`
}

// ClaimEntity reserves one identity value for a user.
// Key format: Field + ":" + Value
type ClaimEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	UserID    string         `datastore:"user_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}

// SecretEntity is an entry of the global secrets collection. Rand is a
// uniform value in [0,1) used to pick a random entry with one indexed query.
type SecretEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Text      string         `datastore:"text,noindex"`
	Rand      float64        `datastore:"rand"`
	CreatedAt time.Time      `datastore:"created_at"`
}

// SessionEntity backs SessionStore. Key name is the session token.
type SessionEntity struct {
	Key    *datastore.Key `datastore:"__key__"`
	Data   []byte         `datastore:"data,noindex"`
	Expiry time.Time      `datastore:"expiry"`
}

func (e *UserEntity) ToUser() *secrets.User {
	out := &secrets.User{
		ID:           e.Key.Name,
		PasswordHash: e.PasswordHash,
		Secrets:      e.Secrets,
		CreatedAt:    e.CreatedAt,
	}
	if out.Secrets == nil {
		out.Secrets = []string{}
	}
	if e.Username != "" {
		out.Username = &e.Username
	}
	if e.GoogleID != "" {
		out.GoogleID = &e.GoogleID
	}
	if e.FacebookID != "" {
		out.FacebookID = &e.FacebookID
	}
	return out
}

func UserToEntity(u *secrets.User, key *datastore.Key) *UserEntity {
	return &UserEntity{
		Key:          key,
		Username:     deref(u.Username),
		PasswordHash: u.PasswordHash,
		GoogleID:     deref(u.GoogleID),
		FacebookID:   deref(u.FacebookID),
		Secrets:      u.Secrets,
		CreatedAt:    u.CreatedAt,
	}
}

func (e *SecretEntity) ToSecret() *secrets.Secret {
	return &secrets.Secret{ID: e.Key.Name, Text: e.Text, CreatedAt: e.CreatedAt}
}

// claimNames lists the claim key names an entity holds.
func (e *UserEntity) claimNames() []string {
	var out []string
	if e.Username != "" {
		out = append(out, claimName("username", e.Username))
	}
	if e.GoogleID != "" {
		out = append(out, claimName("google", e.GoogleID))
	}
	if e.FacebookID != "" {
		out = append(out, claimName("facebook", e.FacebookID))
	}
	return out
}

func claimName(field, value string) string {
	return field + ":" + value
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
