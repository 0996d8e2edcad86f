package auth

import (
	"context"
	"errors"
)

// Identity is the authenticated caller materialized from a session.
type Identity struct {
	UserID    string
	Username  string
	Roles     RoleSet
	SessionID string
}

// Authenticator turns a session id into an Identity.
type Authenticator struct {
	sessions *SessionManager
	users    *UserService
}

func NewAuthenticator(sessions *SessionManager, users *UserService) *Authenticator {
	return &Authenticator{sessions: sessions, users: users}
}

// Identify resolves the session, its owner and the owner's current roles.
// ErrSessionNotFound means unauthenticated; any other error is a storage
// failure and must not be treated as success.
func (a *Authenticator) Identify(ctx context.Context, sessionID string) (*Identity, error) {
	sess, err := a.sessions.Resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	user, err := a.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if user.Disabled {
		return nil, ErrSessionNotFound
	}

	roles, err := a.users.Roles(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &Identity{
		UserID:    user.ID,
		Username:  user.Username,
		Roles:     roles,
		SessionID: sess.ID,
	}, nil
}
