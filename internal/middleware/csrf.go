package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"
)

const (
	CSRFCookieName = "XSRF-TOKEN"
	CSRFHeaderName = "X-CSRF-Token"

	csrfTokenBytes = 32
)

// CSRF implements the double-submit cookie check. The token is not bound to
// the session and is never rotated by the server.
type CSRF struct {
	log logrus.FieldLogger
}

func NewCSRF(log logrus.FieldLogger) *CSRF {
	return &CSRF{log: log}
}

// IssueToken sets a fresh token cookie readable by client script.
func (c *CSRF) IssueToken(w http.ResponseWriter) (string, error) {
	raw := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	http.SetCookie(w, sessions.NewCookie(CSRFCookieName, token, &sessions.Options{
		Path:     "/",
		Secure:   true,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	}))
	return token, nil
}

// Protect rejects state-changing requests whose header token does not equal
// the cookie token.
func (c *CSRF) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !needsCSRF(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get(CSRFHeaderName)
		cookie, err := r.Cookie(CSRFCookieName)
		if err != nil || header == "" || cookie.Value == "" ||
			subtle.ConstantTimeCompare([]byte(header), []byte(cookie.Value)) != 1 {
			c.log.WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
				"ip":     r.RemoteAddr,
			}).Warn("csrf token mismatch")
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func needsCSRF(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
