package models

// Session is a server-side login session. Timestamps are epoch seconds.
type Session struct {
	ID         string
	UserID     string
	CreatedAt  int64
	ExpiresAt  int64
	LastStepUp int64
}

// Expired reports whether the session is dead at the given epoch second.
func (s *Session) Expired(now int64) bool {
	return now >= s.ExpiresAt
}

type LoginAttempt struct {
	Username string
	IP       string
	TS       int64
}
