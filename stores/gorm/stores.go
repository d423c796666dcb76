//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/panyam/secrets"
)

// AutoMigrate runs database migrations for all tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&UserSecretModel{},
		&SecretModel{},
		&SessionModel{},
	)
}

// OpenSQLite opens (creating if needed) a SQLite database file. SQLite
// serializes writers, so the pool is limited to one connection and callers
// queue instead of failing with SQLITE_BUSY.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000"
	}
	db, err := gorm.Open(sqlite.Open(dsn), newConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// OpenPostgres opens a PostgreSQL database from a postgres:// URL or a
// key=value DSN.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), newConfig())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

func newConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         NewLogger(200 * time.Millisecond),
	}
}

// mapError converts gorm errors into the package level sentinels. notFound
// is returned for gorm.ErrRecordNotFound.
func mapError(op string, err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, secrets.ErrIdentityConflict)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	}
	return secrets.StoreError(op, err)
}

// =============================================================================
// UserStore
// =============================================================================

// UserStore implements secrets.UserStore using GORM
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) CreateUser(ctx context.Context, user *secrets.User) error {
	if !user.HasIdentity() {
		return fmt.Errorf("create user: no identity field set")
	}
	model := UserToModel(user)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return mapError("create user", err, nil)
	}
	user.CreatedAt = model.CreatedAt
	if user.Secrets == nil {
		user.Secrets = []string{}
	}
	return nil
}

func (s *UserStore) GetUserById(ctx context.Context, userId string) (*secrets.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", userId).Error; err != nil {
		return nil, mapError("get user", err, secrets.ErrUserNotFound)
	}
	return s.withSecrets(ctx, &model)
}

func (s *UserStore) FindUser(ctx context.Context, filter secrets.IdentityFilter) (*secrets.User, error) {
	if filter.IsEmpty() {
		return nil, secrets.ErrUserNotFound
	}
	q := s.db.WithContext(ctx).Model(&UserModel{})
	if filter.Username != "" {
		q = q.Where("username = ?", filter.Username)
	}
	if filter.GoogleID != "" {
		q = q.Where("google_id = ?", filter.GoogleID)
	}
	if filter.FacebookID != "" {
		q = q.Where("facebook_id = ?", filter.FacebookID)
	}
	var model UserModel
	if err := q.First(&model).Error; err != nil {
		return nil, mapError("find user", err, secrets.ErrUserNotFound)
	}
	return s.withSecrets(ctx, &model)
}

func (s *UserStore) DeleteUser(ctx context.Context, userId string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&UserModel{}, "id = ?", userId)
		if res.Error != nil {
			return mapError("delete user", res.Error, nil)
		}
		if res.RowsAffected == 0 {
			return secrets.ErrUserNotFound
		}
		if err := tx.Delete(&UserSecretModel{}, "user_id = ?", userId).Error; err != nil {
			return mapError("delete user secrets", err, nil)
		}
		return nil
	})
}

// CountUsers returns the number of stored users.
func (s *UserStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&UserModel{}).Count(&n).Error; err != nil {
		return 0, mapError("count users", err, nil)
	}
	return n, nil
}

func (s *UserStore) withSecrets(ctx context.Context, model *UserModel) (*secrets.User, error) {
	var rows []UserSecretModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", model.ID).Order("id").Find(&rows).Error; err != nil {
		return nil, mapError("load user secrets", err, nil)
	}
	return model.ToUser(rows), nil
}

// =============================================================================
// SecretStore
// =============================================================================

// SecretStore implements secrets.SecretStore using GORM
type SecretStore struct {
	db *gorm.DB
}

func NewSecretStore(db *gorm.DB) *SecretStore {
	return &SecretStore{db: db}
}

func (s *SecretStore) SubmitSecret(ctx context.Context, userId string, text string) (*secrets.Secret, error) {
	secret := &SecretModel{ID: secrets.NewUserId(), Text: text}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner UserModel
		if err := tx.Select("id").First(&owner, "id = ?", userId).Error; err != nil {
			return mapError("submit secret", err, secrets.ErrUserNotFound)
		}
		if err := tx.Create(&UserSecretModel{UserID: userId, Text: text}).Error; err != nil {
			return mapError("append user secret", err, nil)
		}
		if err := tx.Create(secret).Error; err != nil {
			return mapError("insert secret", err, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return secret.ToSecret(), nil
}

func (s *SecretStore) RandomSecret(ctx context.Context) (*secrets.Secret, error) {
	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&SecretModel{}).Count(&n).Error; err != nil {
		return nil, mapError("count secrets", err, nil)
	}
	if n == 0 {
		return nil, secrets.ErrNoSecrets
	}
	var model SecretModel
	err := db.Order("created_at, id").Offset(rand.IntN(int(n))).Limit(1).Take(&model).Error
	if err != nil {
		return nil, mapError("random secret", err, secrets.ErrNoSecrets)
	}
	return model.ToSecret(), nil
}

// =============================================================================
// SessionStore
// =============================================================================

// SessionStore implements scs.Store on the sessions table.
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Find returns the session data for token. Expired rows are treated as
// missing.
func (s *SessionStore) Find(token string) ([]byte, bool, error) {
	var model SessionModel
	err := s.db.First(&model, "token = ? AND expiry > ?", token, time.Now().UTC()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, mapError("find session", err, nil)
	}
	return model.Data, true, nil
}

func (s *SessionStore) Commit(token string, b []byte, expiry time.Time) error {
	model := SessionModel{Token: token, Data: b, Expiry: expiry.UTC()}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "expiry"}),
	}).Create(&model).Error
	return mapError("commit session", err, nil)
}

func (s *SessionStore) Delete(token string) error {
	return mapError("delete session", s.db.Delete(&SessionModel{}, "token = ?", token).Error, nil)
}

// DeleteExpired removes expired sessions and returns how many were removed.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Delete(&SessionModel{}, "expiry <= ?", time.Now().UTC())
	return res.RowsAffected, mapError("delete expired sessions", res.Error, nil)
}
