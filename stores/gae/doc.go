//go:build !wasm
// +build !wasm

// Package gae provides Google Cloud Datastore implementations of the secrets
// store interfaces, for deployment on Google Cloud Platform.
//
// # Datastore Kinds
//
// The package uses the following Datastore kinds:
//   - User: canonical users, with their submitted secrets embedded
//   - Claim: one entity per identity value ("username:alice", "google:1234"),
//     written in the same transaction as the user it points to
//   - Secret: the global secrets collection
//   - Session: session data for SessionStore (an scs.Store)
//
// Claims stand in for the unique indexes Datastore lacks: two transactions
// claiming the same value conflict, and the loser reports
// secrets.ErrIdentityConflict.
//
// # Namespacing
//
// All stores take a Datastore namespace, so several deployments can share a
// project:
//
//	users := gae.NewUserStore(client, "staging")
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	users := gae.NewUserStore(client, "")  // default namespace
//	secretStore := gae.NewSecretStore(client, "")
package gae
