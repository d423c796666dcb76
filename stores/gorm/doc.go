//go:build !wasm
// +build !wasm

// Package gorm provides GORM-based implementations of the secrets store
// interfaces. SQLite and PostgreSQL are supported through OpenSQLite and
// OpenPostgres; any other GORM dialector works with the New* constructors.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - users: canonical users, with nullable unique username, google_id and facebook_id
//   - user_secrets: each user's append-only list of submitted secrets
//   - secrets: the global collection secrets are displayed from
//   - sessions: session data for SessionStore (an scs.Store)
//
// The unique indexes on users are what make secrets.FindOrCreate safe under
// concurrency. Databases are opened with TranslateError so that a violated
// index surfaces as secrets.ErrIdentityConflict.
//
// # Usage
//
//	db, _ := gormstore.OpenSQLite("secrets.db")
//	gormstore.AutoMigrate(db)
//	users := gormstore.NewUserStore(db)
//	secretStore := gormstore.NewSecretStore(db)
package gorm
