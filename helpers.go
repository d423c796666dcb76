package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// findOrCreateAttempts bounds the lookup/insert loop. Each lost insert means
// another writer committed a user for the same identity, so the next lookup
// finds it; more than a couple of rounds only happens when the store is
// misbehaving.
const findOrCreateAttempts = 3

// FindOrCreate returns the user matching filter, creating one populated only
// with the filter's fields when none exists. created reports whether this
// call inserted the user.
//
// A plain find-then-insert races when two requests resolve the same identity
// at once. The store's unique constraints make the losing insert fail with
// ErrIdentityConflict, after which the winner's row is looked up again.
func FindOrCreate(ctx context.Context, store UserStore, filter IdentityFilter) (user *User, created bool, err error) {
	if filter.IsEmpty() {
		return nil, false, fmt.Errorf("find or create: empty identity filter")
	}
	for attempt := 0; attempt < findOrCreateAttempts; attempt++ {
		user, err = store.FindUser(ctx, filter)
		if err == nil {
			return user, false, nil
		}
		if !errors.Is(err, ErrUserNotFound) {
			return nil, false, err
		}

		user = filter.NewUser()
		err = store.CreateUser(ctx, user)
		if err == nil {
			return user, true, nil
		}
		if !errors.Is(err, ErrIdentityConflict) {
			return nil, false, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
	}
	return nil, false, StoreError("find or create", fmt.Errorf("no converging result after %d attempts", findOrCreateAttempts))
}

// NewUserId generates an opaque, never reused user id.
func NewUserId() string {
	return uuid.NewString()
}
