//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	"github.com/panyam/secrets"
)

// UserModel is the GORM model for users. The identity columns are nullable
// and uniquely indexed, so each is unique among the users that have it.
type UserModel struct {
	ID           string  `gorm:"primaryKey;size:64"`
	Username     *string `gorm:"size:255;uniqueIndex"`
	PasswordHash []byte
	GoogleID     *string   `gorm:"size:255;uniqueIndex"`
	FacebookID   *string   `gorm:"size:255;uniqueIndex"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

// UserSecretModel is one entry of a user's append-only secrets list. The
// autoincrement id preserves submission order.
type UserSecretModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	UserID    string    `gorm:"size:64;index;not null"`
	Text      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (UserSecretModel) TableName() string {
	return "user_secrets"
}

// SecretModel is an entry of the global, anonymous secrets collection.
type SecretModel struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Text      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

func (SecretModel) TableName() string {
	return "secrets"
}

// SessionModel backs SessionStore.
type SessionModel struct {
	Token  string    `gorm:"primaryKey;size:64"`
	Data   []byte    `gorm:"not null"`
	Expiry time.Time `gorm:"index;not null"`
}

func (SessionModel) TableName() string {
	return "sessions"
}

func (m *UserModel) ToUser(secretRows []UserSecretModel) *secrets.User {
	texts := make([]string, len(secretRows))
	for i, s := range secretRows {
		texts[i] = s.Text
	}
	return &secrets.User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		GoogleID:     m.GoogleID,
		FacebookID:   m.FacebookID,
		Secrets:      texts,
		CreatedAt:    m.CreatedAt,
	}
}

// UserToModel drops empty identity fields so they are stored as NULL and do
// not collide in the unique indexes.
func UserToModel(u *secrets.User) *UserModel {
	return &UserModel{
		ID:           u.ID,
		Username:     nullIfEmpty(u.Username),
		PasswordHash: u.PasswordHash,
		GoogleID:     nullIfEmpty(u.GoogleID),
		FacebookID:   nullIfEmpty(u.FacebookID),
		CreatedAt:    u.CreatedAt,
	}
}

func (m *SecretModel) ToSecret() *secrets.Secret {
	return &secrets.Secret{ID: m.ID, Text: m.Text, CreatedAt: m.CreatedAt}
}

func nullIfEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
