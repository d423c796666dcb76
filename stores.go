package secrets

import (
	"context"
	"time"
)

// User is the canonical identity a session resolves to. Exactly the identity
// fields of the method that created it are set; accounts are never linked.
type User struct {
	ID           string
	Username     *string
	PasswordHash []byte
	GoogleID     *string
	FacebookID   *string
	Secrets      []string
	CreatedAt    time.Time
}

// HasIdentity reports whether at least one identity field is non-empty.
func (u *User) HasIdentity() bool {
	return nonEmpty(u.Username) || nonEmpty(u.GoogleID) || nonEmpty(u.FacebookID)
}

// Secret is an anonymous entry in the global collection shown on /secrets.
type Secret struct {
	ID        string
	Text      string
	CreatedAt time.Time
}

// IdentityFilter selects a user by one or more identity fields. Empty fields
// are ignored; all non-empty fields must match.
type IdentityFilter struct {
	Username   string
	GoogleID   string
	FacebookID string
}

func (f IdentityFilter) IsEmpty() bool {
	return f.Username == "" && f.GoogleID == "" && f.FacebookID == ""
}

// NewUser returns an unsaved user populated only with the filter's fields.
func (f IdentityFilter) NewUser() *User {
	u := &User{ID: NewUserId(), Secrets: []string{}}
	if f.Username != "" {
		u.Username = strPtr(f.Username)
	}
	if f.GoogleID != "" {
		u.GoogleID = strPtr(f.GoogleID)
	}
	if f.FacebookID != "" {
		u.FacebookID = strPtr(f.FacebookID)
	}
	return u
}

// UserStore persists canonical users. Implementations must enforce
// uniqueness of Username, GoogleID and FacebookID among users that have them;
// that constraint is the only concurrency control FindOrCreate relies on.
type UserStore interface {
	// CreateUser inserts a new user. It returns ErrIdentityConflict when an
	// identity field is already claimed by another user.
	CreateUser(ctx context.Context, user *User) error

	// GetUserById returns ErrUserNotFound when no user has the id.
	GetUserById(ctx context.Context, userId string) (*User, error)

	// FindUser returns the single user matching every non-empty field of
	// filter, or ErrUserNotFound.
	FindUser(ctx context.Context, filter IdentityFilter) (*User, error)

	// DeleteUser removes the user and releases its identity fields.
	DeleteUser(ctx context.Context, userId string) error
}

// SecretStore persists submitted secrets.
type SecretStore interface {
	// SubmitSecret appends text to the user's secrets and inserts an
	// independent copy into the global collection.
	SubmitSecret(ctx context.Context, userId string, text string) (*Secret, error)

	// RandomSecret returns a uniformly chosen secret from the global
	// collection, or ErrNoSecrets when it is empty.
	RandomSecret(ctx context.Context) (*Secret, error)
}

func nonEmpty(s *string) bool {
	return s != nil && *s != ""
}

func strPtr(s string) *string {
	return &s
}
