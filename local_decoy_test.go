package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type brokenHasher struct{ calls int }

func (h *brokenHasher) Hash(password string) ([]byte, error) {
	h.calls++
	return nil, errors.New("entropy source unavailable")
}

func (h *brokenHasher) Verify(password string, stored []byte) bool { return false }

type noUsers struct{ UserStore }

func (noUsers) FindUser(ctx context.Context, f IdentityFilter) (*User, error) {
	return nil, ErrUserNotFound
}

func TestDecoyHashSurvivesHasherFailure(t *testing.T) {
	hasher := &brokenHasher{}
	p := NewLocalProvider(noUsers{}, hasher)

	_, err := p.Login(context.Background(), Credentials{Username: "ghost", Password: "pw"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	decoy := p.decoyHash()
	require.NotEmpty(t, decoy)
	_, err = bcrypt.Cost(decoy)
	assert.NoError(t, err, "falls back to a real bcrypt hash")
	assert.Equal(t, 1, hasher.calls, "the fallback is kept once computed")
}

func TestDecoyHashUsesConfiguredHasher(t *testing.T) {
	p := NewLocalProvider(noUsers{}, BcryptHasher{Cost: bcrypt.MinCost})
	decoy := p.decoyHash()
	cost, err := bcrypt.Cost(decoy)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
	assert.Equal(t, decoy, p.decoyHash())
}
