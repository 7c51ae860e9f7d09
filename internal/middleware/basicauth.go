package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"
)

// BasicAuth guards an endpoint with a single username and password.
type BasicAuth struct {
	realm    string
	username string
	password string
	enabled  bool
}

// NewBasicAuth creates the guard. If both username and password are empty,
// authentication is disabled.
func NewBasicAuth(realm, username, password string) *BasicAuth {
	return &BasicAuth{
		realm:    realm,
		username: username,
		password: password,
		enabled:  username != "" || password != "",
	}
}

// Enabled reports whether credentials are required.
func (b *BasicAuth) Enabled() bool {
	return b.enabled
}

// Handler returns middleware that requires the configured credentials.
func (b *BasicAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !b.enabled {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			b.unauthorized(w)
			return
		}

		// Compare both before deciding so timing does not reveal which failed.
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(b.username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(b.password)) == 1
		if !userMatch || !passMatch {
			b.unauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (b *BasicAuth) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", b.realm))
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
