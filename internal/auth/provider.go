package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/DukeRupert/fieldreport/internal/domain"
)

// Provider answers who is signed in on this device.
type Provider interface {
	CurrentSession(ctx context.Context) (domain.Identity, bool)
}

// StaticProvider returns the identity configured for the device. An
// identity stored in the context takes precedence, so a request-scoped
// override wins over the device default.
type StaticProvider struct {
	identity domain.Identity
}

// NewStaticProvider trims the configured values. An empty id yields a
// provider with no session.
func NewStaticProvider(id, displayName string) *StaticProvider {
	return &StaticProvider{identity: domain.Identity{
		ID:          strings.TrimSpace(id),
		DisplayName: strings.TrimSpace(displayName),
	}}
}

func (p *StaticProvider) CurrentSession(ctx context.Context) (domain.Identity, bool) {
	if id, ok := GetIdentity(ctx); ok {
		return id, true
	}
	if p.identity.IsZero() {
		return domain.Identity{}, false
	}
	return p.identity, true
}

// HeaderUserID and HeaderUserName let a trusted front end name the
// technician per request.
const (
	HeaderUserID   = "X-Fieldreport-User"
	HeaderUserName = "X-Fieldreport-User-Name"
)

// Middleware resolves the identity for each request and stores it in the
// context. Requests without one continue anonymously; handlers that create
// documents reject them.
func Middleware(p Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if userID := strings.TrimSpace(r.Header.Get(HeaderUserID)); userID != "" {
				ctx = SetIdentity(ctx, domain.Identity{
					ID:          userID,
					DisplayName: strings.TrimSpace(r.Header.Get(HeaderUserName)),
				})
			}
			if id, ok := p.CurrentSession(ctx); ok {
				ctx = SetIdentity(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
