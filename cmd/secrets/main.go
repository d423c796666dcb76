package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/panyam/secrets/cmd/secrets/serve"
	"github.com/panyam/secrets/cmd/secrets/users"
	"github.com/panyam/secrets/internal/cmdflags"
	"github.com/panyam/secrets/internal/logutil"
)

func main() {
	var logLevel string
	var logPretty bool
	app := &cli.App{
		Name:  "secrets",
		Usage: "Share secrets anonymously, after logging in",
		Flags: []cli.Flag{
			cmdflags.LogLevel(&logLevel),
			cmdflags.LogPretty(&logPretty),
		},
		Before: func(ctx *cli.Context) error {
			return logutil.Init(logLevel, logPretty)
		},
		Commands: []*cli.Command{
			serve.Cmd(),
			users.Cmd(),
		},
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	err := app.RunContext(ctx, os.Args)
	if err != nil {
		log.Error().Err(err).Msg("Application failed")
		os.Exit(1)
	}
}
