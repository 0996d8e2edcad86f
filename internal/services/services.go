package services

import (
	"context"
	"errors"

	"ovpnadmin/internal/auth"
)

var (
	ErrInvalidCN      = errors.New("invalid_cn")
	ErrClientNotFound = errors.New("client not found")
	ErrCCDTooLarge    = errors.New("ccd too large")
	ErrInvalidArchive = errors.New("invalid ccd archive")
)

// Actor identifies who triggered an operation, for the audit trail.
type Actor struct {
	Username  string
	IP        string
	UserAgent string
}

// Auditor is satisfied by *auth.AuditService.
type Auditor interface {
	Record(ctx context.Context, ev auth.Event)
}

func (a Actor) event(action, target string, details any) auth.Event {
	return auth.Event{
		Actor:     a.Username,
		Action:    action,
		Target:    target,
		IP:        a.IP,
		UserAgent: a.UserAgent,
		Details:   details,
	}
}
