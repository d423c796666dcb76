package secrets

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Credentials is the username/password pair submitted to /login and /register.
type Credentials struct {
	Username string
	Password string
}

// Normalize trims surrounding whitespace from the username. Passwords are
// used verbatim.
func (c Credentials) Normalize() Credentials {
	c.Username = strings.TrimSpace(c.Username)
	return c
}

// Validate checks both fields are present.
func (c Credentials) Validate() error {
	if c.Username == "" || c.Password == "" {
		return ErrMissingField
	}
	return nil
}

// PasswordHasher derives and checks opaque password credentials. The salt is
// generated per call and embedded in the returned credential.
type PasswordHasher interface {
	Hash(password string) ([]byte, error)

	// Verify returns false for a wrong password and for a malformed stored
	// credential alike.
	Verify(password string, stored []byte) bool
}

// NewPasswordHasher returns the hasher registered under name ("bcrypt" or
// "argon2id"). An empty name selects bcrypt.
func NewPasswordHasher(name string) (PasswordHasher, error) {
	switch name {
	case "", "bcrypt":
		return BcryptHasher{}, nil
	case "argon2id":
		return DefaultArgon2idHasher(), nil
	}
	return nil, fmt.Errorf("unknown password hasher %q", name)
}

// VerifyPassword checks password against a credential produced by any of the
// supported hashers, so switching the configured hasher keeps old accounts
// working.
func VerifyPassword(password string, stored []byte) bool {
	if bytes.HasPrefix(stored, []byte(argon2idPrefix)) {
		return Argon2idHasher{}.Verify(password, stored)
	}
	return BcryptHasher{}.Verify(password, stored)
}

// BcryptHasher hashes with bcrypt. A zero Cost means bcrypt.DefaultCost.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) ([]byte, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

func (h BcryptHasher) Verify(password string, stored []byte) bool {
	return bcrypt.CompareHashAndPassword(stored, []byte(password)) == nil
}

const argon2idPrefix = "$argon2id$"

// Argon2idHasher produces PHC formatted credentials:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
//
// Verify reads the parameters from the credential, so the receiver's own
// fields only matter for Hash.
type Argon2idHasher struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

func DefaultArgon2idHasher() Argon2idHasher {
	return Argon2idHasher{Time: 1, Memory: 64 * 1024, Threads: 4, SaltLen: 16, KeyLen: 32}
}

func (h Argon2idHasher) Hash(password string) ([]byte, error) {
	salt := make([]byte, h.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.Time, h.Memory, h.Threads, h.KeyLen)
	enc := base64.RawStdEncoding
	return []byte(fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2idPrefix, argon2.Version, h.Memory, h.Time, h.Threads,
		enc.EncodeToString(salt), enc.EncodeToString(key))), nil
}

func (h Argon2idHasher) Verify(password string, stored []byte) bool {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(string(stored), "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}
	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false
	}
	if memory == 0 || time == 0 || threads == 0 {
		return false
	}
	enc := base64.RawStdEncoding
	salt, err := enc.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := enc.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
