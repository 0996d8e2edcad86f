package middleware

import (
	"context"
	"errors"
	"net/http"

	"ovpnadmin/internal/auth"

	"github.com/sirupsen/logrus"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

type AuthMiddleware struct {
	sessions      *auth.SessionManager
	authenticator *auth.Authenticator
	log           logrus.FieldLogger
}

func NewAuthMiddleware(sessions *auth.SessionManager, authenticator *auth.Authenticator, log logrus.FieldLogger) *AuthMiddleware {
	return &AuthMiddleware{
		sessions:      sessions,
		authenticator: authenticator,
		log:           log,
	}
}

// Resolve materializes the caller's identity from the session cookie.
// auth.ErrSessionNotFound means the caller is anonymous.
func (m *AuthMiddleware) Resolve(r *http.Request) (*auth.Identity, error) {
	sid, ok := m.sessions.FromRequest(r)
	if !ok {
		return nil, auth.ErrSessionNotFound
	}
	return m.authenticator.Identify(r.Context(), sid)
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.Resolve(r)
		if err != nil {
			if errors.Is(err, auth.ErrSessionNotFound) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			m.log.WithError(err).WithField("path", r.URL.Path).Error("session resolution failed")
			writeError(w, http.StatusInternalServerError, "internal_error")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireRole admits callers holding at least one of roles. It must run
// after RequireAuth.
func (m *AuthMiddleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	required := auth.NewRoleSet(roles...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := auth.EnsureRole(GetIdentity(r), required); err != nil {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func GetIdentity(r *http.Request) *auth.Identity {
	id, _ := r.Context().Value(IdentityContextKey).(*auth.Identity)
	return id
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, id)
}
