package cmdflags

import (
	"github.com/urfave/cli/v2"
)

func Database(out *string) cli.Flag {
	if len(*out) == 0 {
		*out = "sqlite://secrets.db"
	}
	return &cli.StringFlag{
		Name:        "db",
		Usage:       "Identity store: sqlite://<path>, postgres://... or datastore://<project>[/<namespace>]",
		EnvVars:     []string{"DATABASE_URL"},
		Value:       *out,
		Destination: out,
	}
}

func PasswordHasher(out *string) cli.Flag {
	if len(*out) == 0 {
		*out = "bcrypt"
	}
	return &cli.StringFlag{
		Name:        "password-hasher",
		Usage:       "Hasher for new passwords (bcrypt or argon2id). Existing hashes of either kind keep verifying",
		EnvVars:     []string{"PASSWORD_HASHER"},
		Value:       *out,
		Destination: out,
	}
}

func LogLevel(out *string) cli.Flag {
	if len(*out) == 0 {
		*out = "info"
	}
	return &cli.StringFlag{
		Name:        "log-level",
		Usage:       "Minimum log level (trace, debug, info, warn, error)",
		EnvVars:     []string{"LOG_LEVEL"},
		Value:       *out,
		Destination: out,
	}
}

func LogPretty(out *bool) cli.Flag {
	return &cli.BoolFlag{
		Name:        "log-pretty",
		Usage:       "Human readable console logs instead of JSON",
		EnvVars:     []string{"LOG_PRETTY"},
		Value:       *out,
		Destination: out,
	}
}
