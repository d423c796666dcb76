package users

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/panyam/secrets"
	"github.com/panyam/secrets/internal/cmdflags"
	"github.com/panyam/secrets/stores"
)

func Cmd() *cli.Command {
	var backend *stores.Backend
	var dbURL string
	var hasherName string
	return &cli.Command{
		Name:  "users",
		Usage: "Manage user accounts directly in the database",
		Flags: []cli.Flag{
			cmdflags.Database(&dbURL),
			cmdflags.PasswordHasher(&hasherName),
		},
		Before: func(ctx *cli.Context) error {
			var err error
			backend, err = stores.Open(ctx.Context, dbURL)
			return err
		},
		After: func(ctx *cli.Context) error {
			if backend == nil {
				return nil
			}
			return backend.Close()
		},
		Subcommands: []*cli.Command{
			createCmd(&backend, &hasherName),
			deleteCmd(&backend),
		},
	}
}

func createCmd(backend **stores.Backend, hasherName *string) *cli.Command {
	var username string
	return &cli.Command{
		Name:  "create",
		Usage: "Register a local user (password is prompted for, or read from stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "username",
				Aliases:     []string{"u", "user"},
				Usage:       "Name of the user to register",
				Destination: &username,
				Required:    true,
			},
		},
		Action: func(ctx *cli.Context) error {
			password, err := readPassword(ctx.App.Reader, ctx.App.ErrWriter)
			if err != nil {
				return err
			}
			hasher, err := secrets.NewPasswordHasher(*hasherName)
			if err != nil {
				return err
			}
			local := secrets.NewLocalProvider((*backend).Users, hasher)
			user, err := local.Register(ctx.Context, secrets.Credentials{Username: username, Password: password})
			if err != nil {
				return err
			}
			fmt.Fprintln(ctx.App.Writer, user.ID)
			return nil
		},
	}
}

func deleteCmd(backend **stores.Backend) *cli.Command {
	var userId string
	return &cli.Command{
		Name:  "delete",
		Usage: "Delete a user and its secrets. Its sessions stop authenticating",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "id",
				Usage:       "Id of the user to delete",
				Destination: &userId,
				Required:    true,
			},
		},
		Action: func(ctx *cli.Context) error {
			return (*backend).Users.DeleteUser(ctx.Context, userId)
		},
	}
}

// readPassword prompts without echo when in is a terminal and otherwise
// reads the first line of in.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if in == nil {
		in = os.Stdin
	}
	if prompt == nil {
		prompt = os.Stderr
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	sc := bufio.NewScanner(in)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", errors.New("missing password from stdin")
	}
	password := strings.TrimRight(sc.Text(), "\r")
	if password == "" {
		return "", errors.New("missing password from stdin")
	}
	return password, nil
}
