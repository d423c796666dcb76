//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	"github.com/panyam/secrets"
)

// Kind constants for Datastore entities
const (
	KindUser    = "User"
	KindClaim   = "Claim"
	KindSecret  = "Secret"
	KindSession = "Session"
)

// base holds what every store needs to build keys and queries.
type base struct {
	client    *datastore.Client
	namespace string
}

func (s base) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s base) query(kind string) *datastore.Query {
	q := datastore.NewQuery(kind)
	if s.namespace != "" {
		q = q.Namespace(s.namespace)
	}
	return q
}

func mapError(op string, err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, datastore.ErrNoSuchEntity):
		return notFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	}
	return secrets.StoreError(op, err)
}

// ============================================================================
// UserStore
// ============================================================================

// UserStore implements secrets.UserStore using Google Cloud Datastore.
// Datastore has no unique indexes, so every identity value is reserved by a
// Claim entity written in the same transaction as the user.
type UserStore struct {
	base
}

// NewUserStore creates a new Datastore-backed UserStore
func NewUserStore(client *datastore.Client, namespace string) *UserStore {
	return &UserStore{base{client: client, namespace: namespace}}
}

func (s *UserStore) CreateUser(ctx context.Context, user *secrets.User) error {
	if !user.HasIdentity() {
		return fmt.Errorf("create user: no identity field set")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.Secrets == nil {
		user.Secrets = []string{}
	}
	key := s.namespacedKey(KindUser, user.ID)
	entity := UserToEntity(user, key)

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing UserEntity
		if err := tx.Get(key, &existing); err == nil {
			return secrets.ErrIdentityConflict
		} else if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}

		for _, name := range entity.claimNames() {
			claimKey := s.namespacedKey(KindClaim, name)
			var claim ClaimEntity
			err := tx.Get(claimKey, &claim)
			if err == nil {
				return secrets.ErrIdentityConflict
			}
			if !errors.Is(err, datastore.ErrNoSuchEntity) {
				return err
			}
			if _, err := tx.Put(claimKey, &ClaimEntity{UserID: user.ID, CreatedAt: user.CreatedAt}); err != nil {
				return err
			}
		}
		_, err := tx.Put(key, entity)
		return err
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, secrets.ErrIdentityConflict):
		return fmt.Errorf("create user: %w", secrets.ErrIdentityConflict)
	case errors.Is(err, datastore.ErrConcurrentTransaction):
		// Lost every retry to another writer of the same claim.
		return fmt.Errorf("create user: %w: %w", secrets.ErrIdentityConflict, err)
	}
	return mapError("create user", err, nil)
}

func (s *UserStore) GetUserById(ctx context.Context, userId string) (*secrets.User, error) {
	var entity UserEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindUser, userId), &entity); err != nil {
		return nil, mapError("get user", err, secrets.ErrUserNotFound)
	}
	return entity.ToUser(), nil
}

// FindUser resolves the first non-empty filter field through its claim, then
// checks the remaining fields on the user itself.
func (s *UserStore) FindUser(ctx context.Context, filter secrets.IdentityFilter) (*secrets.User, error) {
	var name string
	switch {
	case filter.Username != "":
		name = claimName("username", filter.Username)
	case filter.GoogleID != "":
		name = claimName("google", filter.GoogleID)
	case filter.FacebookID != "":
		name = claimName("facebook", filter.FacebookID)
	default:
		return nil, secrets.ErrUserNotFound
	}

	var claim ClaimEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindClaim, name), &claim); err != nil {
		return nil, mapError("find user", err, secrets.ErrUserNotFound)
	}
	user, err := s.GetUserById(ctx, claim.UserID)
	if err != nil {
		return nil, err
	}
	if !matches(user, filter) {
		return nil, secrets.ErrUserNotFound
	}
	return user, nil
}

func (s *UserStore) DeleteUser(ctx context.Context, userId string) error {
	key := s.namespacedKey(KindUser, userId)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity UserEntity
		if err := tx.Get(key, &entity); err != nil {
			return err
		}
		keys := []*datastore.Key{key}
		for _, name := range entity.claimNames() {
			keys = append(keys, s.namespacedKey(KindClaim, name))
		}
		return tx.DeleteMulti(keys)
	})
	return mapError("delete user", err, secrets.ErrUserNotFound)
}

func matches(u *secrets.User, f secrets.IdentityFilter) bool {
	return (f.Username == "" || deref(u.Username) == f.Username) &&
		(f.GoogleID == "" || deref(u.GoogleID) == f.GoogleID) &&
		(f.FacebookID == "" || deref(u.FacebookID) == f.FacebookID)
}

// ============================================================================
// SecretStore
// ============================================================================

// SecretStore implements secrets.SecretStore using Google Cloud Datastore
type SecretStore struct {
	base
}

func NewSecretStore(client *datastore.Client, namespace string) *SecretStore {
	return &SecretStore{base{client: client, namespace: namespace}}
}

func (s *SecretStore) SubmitSecret(ctx context.Context, userId string, text string) (*secrets.Secret, error) {
	userKey := s.namespacedKey(KindUser, userId)
	secret := &SecretEntity{
		Key:       s.namespacedKey(KindSecret, secrets.NewUserId()),
		Text:      text,
		Rand:      rand.Float64(),
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var user UserEntity
		if err := tx.Get(userKey, &user); err != nil {
			return err
		}
		user.Secrets = append(user.Secrets, text)
		user.Version++
		if _, err := tx.Put(userKey, &user); err != nil {
			return err
		}
		_, err := tx.Put(secret.Key, secret)
		return err
	})
	if err != nil {
		return nil, mapError("submit secret", err, secrets.ErrUserNotFound)
	}
	return secret.ToSecret(), nil
}

// RandomSecret picks the first secret at or after a random point on the
// rand axis, wrapping to the lowest one.
func (s *SecretStore) RandomSecret(ctx context.Context) (*secrets.Secret, error) {
	pivot := rand.Float64()
	queries := []*datastore.Query{
		s.query(KindSecret).FilterField("rand", ">=", pivot).Order("rand").Limit(1),
		s.query(KindSecret).Order("rand").Limit(1),
	}
	for _, q := range queries {
		it := s.client.Run(ctx, q)
		var entity SecretEntity
		_, err := it.Next(&entity)
		if err == iterator.Done {
			continue
		}
		if err != nil {
			return nil, mapError("random secret", err, nil)
		}
		return entity.ToSecret(), nil
	}
	return nil, secrets.ErrNoSecrets
}

// ============================================================================
// SessionStore
// ============================================================================

// SessionStore implements scs.Store with one Session entity per token.
type SessionStore struct {
	base
}

func NewSessionStore(client *datastore.Client, namespace string) *SessionStore {
	return &SessionStore{base{client: client, namespace: namespace}}
}

func (s *SessionStore) Find(token string) ([]byte, bool, error) {
	return s.FindCtx(context.Background(), token)
}

func (s *SessionStore) Commit(token string, b []byte, expiry time.Time) error {
	return s.CommitCtx(context.Background(), token, b, expiry)
}

func (s *SessionStore) Delete(token string) error {
	return s.DeleteCtx(context.Background(), token)
}

func (s *SessionStore) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	var entity SessionEntity
	err := s.client.Get(ctx, s.namespacedKey(KindSession, token), &entity)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, mapError("find session", err, nil)
	}
	if !entity.Expiry.After(time.Now()) {
		return nil, false, nil
	}
	return entity.Data, true, nil
}

func (s *SessionStore) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	key := s.namespacedKey(KindSession, token)
	_, err := s.client.Put(ctx, key, &SessionEntity{Key: key, Data: b, Expiry: expiry.UTC()})
	return mapError("commit session", err, nil)
}

func (s *SessionStore) DeleteCtx(ctx context.Context, token string) error {
	return mapError("delete session", s.client.Delete(ctx, s.namespacedKey(KindSession, token)), nil)
}

// DeleteExpired removes expired sessions and returns how many were removed.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	q := s.query(KindSession).FilterField("expiry", "<=", time.Now().UTC()).KeysOnly()
	keys, err := s.client.GetAll(ctx, q, nil)
	if err != nil {
		return 0, mapError("list expired sessions", err, nil)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.client.DeleteMulti(ctx, keys); err != nil {
		return 0, mapError("delete expired sessions", err, nil)
	}
	return int64(len(keys)), nil
}
