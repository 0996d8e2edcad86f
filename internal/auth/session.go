package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ovpnadmin/internal/database"
	"ovpnadmin/internal/models"

	"github.com/gorilla/sessions"
)

const sessionIDBytes = 32

// SessionStore is the storage the session manager needs.
type SessionStore interface {
	CreateSession(ctx context.Context, sess *models.Session) error
	LoadSession(ctx context.Context, id string) (*models.Session, error)
	TouchSessionStepUp(ctx context.Context, id string, ts int64) error
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now int64) (int64, error)
}

// SessionManager owns the lifecycle of server-side sessions and the
// cookie that carries their id.
type SessionManager struct {
	store      SessionStore
	cookieName string
	ttl        time.Duration
	now        func() time.Time
}

func NewSessionManager(store SessionStore, cookieName string, ttl time.Duration) *SessionManager {
	return &SessionManager{
		store:      store,
		cookieName: cookieName,
		ttl:        ttl,
		now:        time.Now,
	}
}

func (m *SessionManager) CookieName() string { return m.cookieName }

func (m *SessionManager) TTL() time.Duration { return m.ttl }

// Create persists a new session for userID and returns its bearer id.
func (m *SessionManager) Create(ctx context.Context, userID string) (string, error) {
	id, err := newSessionID()
	if err != nil {
		return "", err
	}

	now := m.now().Unix()
	sess := &models.Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now + int64(m.ttl/time.Second),
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return "", err
	}
	return id, nil
}

// Resolve returns the live session for id. Missing and expired sessions
// both yield ErrSessionNotFound; expired rows are left for Sweep.
func (m *SessionManager) Resolve(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	sess, err := m.store.LoadSession(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if sess.Expired(m.now().Unix()) {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// TouchStepUp records an elevated re-authentication on the session.
func (m *SessionManager) TouchStepUp(ctx context.Context, id string) error {
	return m.store.TouchSessionStepUp(ctx, id, m.now().Unix())
}

// Revoke deletes the session. Unknown ids are not an error.
func (m *SessionManager) Revoke(ctx context.Context, id string) error {
	return m.store.DeleteSession(ctx, id)
}

// Sweep deletes expired rows.
func (m *SessionManager) Sweep(ctx context.Context) (int64, error) {
	return m.store.DeleteExpiredSessions(ctx, m.now().Unix())
}

// FromRequest returns the session id carried by the request cookie.
func (m *SessionManager) FromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (m *SessionManager) SetCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, sessions.NewCookie(m.cookieName, id, m.cookieOptions(int(m.ttl/time.Second))))
}

func (m *SessionManager) ClearCookie(w http.ResponseWriter) {
	// Negative MaxAge is written as Max-Age=0.
	http.SetCookie(w, sessions.NewCookie(m.cookieName, "", m.cookieOptions(-1)))
}

func (m *SessionManager) cookieOptions(maxAge int) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

func newSessionID() (string, error) {
	raw := make([]byte, sessionIDBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
