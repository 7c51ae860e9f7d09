// Package auth supplies the identity of the technician editing a report.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/DukeRupert/fieldreport/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// identityContextKey is the key used to store the identity in context.
	identityContextKey contextKey = "identity"
)

// GetIdentity retrieves the identity from the context.
//
// The second result is false if no identity was set.
func GetIdentity(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(domain.Identity)
	if !ok || id.IsZero() {
		return domain.Identity{}, false
	}
	return id, true
}

// GetIdentityFromRequest is GetIdentity on the request context.
func GetIdentityFromRequest(r *http.Request) (domain.Identity, bool) {
	return GetIdentity(r.Context())
}

// SetIdentity stores an identity in the context.
func SetIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}
