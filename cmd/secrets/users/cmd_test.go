package users_test

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/panyam/secrets"
	"github.com/panyam/secrets/cmd/secrets/users"
	"github.com/panyam/secrets/stores"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := &cli.App{
		Name:      "secrets",
		Commands:  []*cli.Command{users.Cmd()},
		Reader:    strings.NewReader(stdin),
		Writer:    &out,
		ErrWriter: io.Discard,
	}
	err := app.RunContext(context.Background(), append([]string{"secrets", "users"}, args...))
	return strings.TrimSpace(out.String()), err
}

func findUser(t *testing.T, dsn, username string) (*secrets.User, error) {
	t.Helper()
	backend, err := stores.Open(context.Background(), dsn)
	require.NoError(t, err)
	defer backend.Close()
	return backend.Users.FindUser(context.Background(), secrets.IdentityFilter{Username: username})
}

func TestCreateAndDelete(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "secrets.db")

	id, err := run(t, "hunter2\n", "--db", dsn, "create", "--username", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	alice, err := findUser(t, dsn, "alice")
	require.NoError(t, err)
	assert.Equal(t, id, alice.ID)
	assert.True(t, secrets.VerifyPassword("hunter2", alice.PasswordHash))

	_, err = run(t, "other\n", "--db", dsn, "create", "--username", "alice")
	assert.ErrorIs(t, err, secrets.ErrDuplicateUsername)

	_, err = run(t, "", "--db", dsn, "delete", "--id", id)
	require.NoError(t, err)
	_, err = findUser(t, dsn, "alice")
	assert.ErrorIs(t, err, secrets.ErrUserNotFound)
}

func TestCreateNeedsPassword(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "secrets.db")

	for _, stdin := range []string{"", "\n", "\r\n"} {
		_, err := run(t, stdin, "--db", dsn, "create", "--username", "bob")
		assert.ErrorContains(t, err, "missing password")
	}
	_, err := findUser(t, dsn, "bob")
	assert.ErrorIs(t, err, secrets.ErrUserNotFound)
}

func TestCreateKeepsPasswordVerbatim(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "secrets.db")

	_, err := run(t, " spaced pw \r\nignored\n", "--db", dsn, "create", "--username", "carol")
	require.NoError(t, err)
	carol, err := findUser(t, dsn, "carol")
	require.NoError(t, err)
	assert.True(t, secrets.VerifyPassword(" spaced pw ", carol.PasswordHash))
}
