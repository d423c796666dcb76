package serve

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/panyam/secrets"
	"github.com/panyam/secrets/internal/cmdflags"
	"github.com/panyam/secrets/internal/httpserver"
	"github.com/panyam/secrets/internal/logutil"
	"github.com/panyam/secrets/stores"
	"github.com/panyam/secrets/stores/cachestore"
)

func Cmd() *cli.Command {
	bindAddr := "127.0.0.1:2000"
	var dbURL string
	var hasherName string
	sessionStore := "memory"
	var sessionSecret string
	sessionLifetime := 24 * time.Hour
	var secureCookies bool
	baseURL := "http://localhost:2000"
	var google, facebook secrets.OAuthClient
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the secrets web app",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "bind",
				Usage:       "Address to listen on. PORT alone binds every interface on that port",
				EnvVars:     []string{"BIND_ADDR"},
				Value:       bindAddr,
				Destination: &bindAddr,
			},
			cmdflags.Database(&dbURL),
			cmdflags.PasswordHasher(&hasherName),
			&cli.StringFlag{
				Name:        "session-store",
				Usage:       "Where sessions live: memory (lost on restart) or db (the --db database)",
				EnvVars:     []string{"SESSION_STORE"},
				Value:       sessionStore,
				Destination: &sessionStore,
			},
			&cli.StringFlag{
				Name:        "session-secret",
				Usage:       "Secret used to sign the OAuth state",
				EnvVars:     []string{"SECRET"},
				Destination: &sessionSecret,
				Required:    true,
			},
			&cli.DurationFlag{
				Name:        "session-lifetime",
				Usage:       "How long a login lasts",
				EnvVars:     []string{"SESSION_LIFETIME"},
				Value:       sessionLifetime,
				Destination: &sessionLifetime,
			},
			&cli.BoolFlag{
				Name:        "secure-cookies",
				Usage:       "Mark cookies Secure (serve behind TLS)",
				EnvVars:     []string{"SECURE_COOKIES"},
				Destination: &secureCookies,
			},
			&cli.StringFlag{
				Name:        "base-url",
				Usage:       "External URL of the app, used for OAuth callbacks",
				EnvVars:     []string{"BASE_URL"},
				Value:       baseURL,
				Destination: &baseURL,
			},
			&cli.StringFlag{
				Name:        "google-client-id",
				EnvVars:     []string{"CLIENT_ID"},
				Destination: &google.ClientID,
			},
			&cli.StringFlag{
				Name:        "google-client-secret",
				EnvVars:     []string{"CLIENT_SECRET"},
				Destination: &google.ClientSecret,
			},
			&cli.StringFlag{
				Name:        "facebook-client-id",
				EnvVars:     []string{"CLIENT_F_ID"},
				Destination: &facebook.ClientID,
			},
			&cli.StringFlag{
				Name:        "facebook-client-secret",
				EnvVars:     []string{"CLIENT_F_SECRET"},
				Destination: &facebook.ClientSecret,
			},
		},
		Action: func(ctx *cli.Context) error {
			if !ctx.IsSet("bind") {
				if port := os.Getenv("PORT"); port != "" {
					bindAddr = ":" + port
				}
			}
			logger := log.Logger
			runCtx := logutil.WithLogger(ctx.Context, logger)

			hasher, err := secrets.NewPasswordHasher(hasherName)
			if err != nil {
				return err
			}
			backend, err := stores.Open(runCtx, dbURL)
			if err != nil {
				return err
			}
			defer backend.Close()

			var store scs.Store
			switch sessionStore {
			case "memory":
				cache, err := cachestore.New(runCtx, sessionLifetime)
				if err != nil {
					return err
				}
				defer cache.Close()
				store = cache
			case "db":
				store = backend.Sessions
				go sweepSessions(runCtx, backend.DeleteExpired, 5*time.Minute)
			default:
				return errors.New("session-store must be memory or db")
			}

			app, err := secrets.NewApp(secrets.AppConfig{
				Users:           backend.Users,
				Secrets:         backend.Secrets,
				SessionStore:    store,
				SessionLifetime: sessionLifetime,
				SecureCookies:   secureCookies,
				StateKey:        []byte(sessionSecret),
				BaseURL:         baseURL,
				Google:          google,
				Facebook:        facebook,
				Hasher:          hasher,
				Logger:          &logger,
			})
			if err != nil {
				return err
			}
			logger.Info().
				Bool("google", google.Enabled()).
				Bool("facebook", facebook.Enabled()).
				Str("session_store", sessionStore).
				Msg("Providers configured")
			return httpserver.Serve(runCtx, bindAddr, app.Handler())
		},
	}
}

// sweepSessions deletes expired database sessions every interval until ctx
// is done.
func sweepSessions(ctx context.Context, deleteExpired func(context.Context) (int64, error), interval time.Duration) {
	log := logutil.GetOrDefault(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := deleteExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Session sweep failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("Expired sessions removed")
			}
		}
	}
}
