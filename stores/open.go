//go:build !wasm
// +build !wasm

// Package stores selects a storage backend from a URL.
package stores

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/datastore"
	"github.com/alexedwards/scs/v2"
	"gorm.io/gorm"

	"github.com/panyam/secrets"
	"github.com/panyam/secrets/stores/gae"
	gormstore "github.com/panyam/secrets/stores/gorm"
)

// Backend bundles the stores of one database.
type Backend struct {
	Users    secrets.UserStore
	Secrets  secrets.SecretStore
	Sessions scs.Store

	// DeleteExpired removes expired sessions from Sessions.
	DeleteExpired func(ctx context.Context) (int64, error)

	Close func() error
}

// Open connects to the database named by dsn and prepares its schema:
//
//	sqlite://<path>                 SQLite file (sqlite::memory: style paths are passed through)
//	postgres://... / postgresql://  PostgreSQL
//	datastore://<project>[/<ns>]    Cloud Datastore, optionally namespaced
func Open(ctx context.Context, dsn string) (*Backend, error) {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return nil, fmt.Errorf("database url %q has no scheme", dsn)
	}
	switch scheme {
	case "sqlite", "sqlite3":
		db, err := gormstore.OpenSQLite(rest)
		if err != nil {
			return nil, err
		}
		return gormBackend(db)
	case "postgres", "postgresql":
		db, err := gormstore.OpenPostgres(dsn)
		if err != nil {
			return nil, err
		}
		return gormBackend(db)
	case "datastore":
		u, err := url.Parse(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse datastore url: %w", err)
		}
		project, namespace := u.Host, strings.Trim(u.Path, "/")
		client, err := datastore.NewClient(ctx, project)
		if err != nil {
			return nil, fmt.Errorf("connect to datastore %s: %w", project, err)
		}
		sessions := gae.NewSessionStore(client, namespace)
		return &Backend{
			Users:         gae.NewUserStore(client, namespace),
			Secrets:       gae.NewSecretStore(client, namespace),
			Sessions:      sessions,
			DeleteExpired: sessions.DeleteExpired,
			Close:         client.Close,
		}, nil
	}
	return nil, fmt.Errorf("unsupported database scheme %q", scheme)
}

func gormBackend(db *gorm.DB) (*Backend, error) {
	if err := gormstore.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sessions := gormstore.NewSessionStore(db)
	return &Backend{
		Users:         gormstore.NewUserStore(db),
		Secrets:       gormstore.NewSecretStore(db),
		Sessions:      sessions,
		DeleteExpired: sessions.DeleteExpired,
		Close:         sqlDB.Close,
	}, nil
}
