// Package secrets is a small web application where people sign in and share
// secrets anonymously. Most of it is the session authentication underneath.
//
// A user can authenticate three ways: a locally registered username and
// password, Google sign-in, or Facebook login. Whichever method is used, the
// request is resolved to one canonical User, and only that user's id is kept
// in the session.
//
// # Architecture
//
// Credentials: PasswordHasher turns passwords into salted, one-way credentials
// (bcrypt or argon2id). VerifyPassword checks either format.
//
// Identity resolution: every provider implements IdentityResolver. The local
// provider checks a password. The OAuth providers take the profile id returned
// by the provider and call FindOrCreate. FindOrCreate creates a user the first
// time an identity is seen and relies on the store's unique constraints to
// stay idempotent when requests race.
//
// Sessions: SessionManager wraps an scs.SessionManager. Serialize renews the
// session token and stores the user id. Deserialize fetches the user again on
// each request, so a deleted user is logged out.
//
// Gate: Middleware.ExtractUser puts the request's AuthState in the context.
// Middleware.EnsureUser redirects unauthenticated requests to /login.
// IsAuthenticated and CurrentUser read that state.
//
// # Basic Usage
//
//	backend, _ := stores.Open(ctx, "sqlite://secrets.db")
//	app, _ := secrets.NewApp(secrets.AppConfig{
//	    Users:        backend.Users,
//	    Secrets:      backend.Secrets,
//	    SessionStore: backend.Sessions,
//	    StateKey:     []byte(os.Getenv("SECRET")),
//	    BaseURL:      "http://localhost:2000",
//	    Google:       secrets.OAuthClient{ClientID: id, ClientSecret: secret},
//	})
//	http.ListenAndServe(":2000", app.Handler())
//
// # Limitations
//
// Accounts are never linked. Signing in with Google and then with Facebook
// produces two unrelated users, and so does a local account with the same
// person's Google login.
package secrets
