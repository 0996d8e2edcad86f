package auth

import (
	"context"
	"time"

	"ovpnadmin/internal/models"
)

// AttemptStore is the login attempt ledger.
type AttemptStore interface {
	RecordLoginAttempt(ctx context.Context, attempt models.LoginAttempt) error
	CountLoginAttempts(ctx context.Context, username, ip string, since int64) (int, int, error)
}

type ThrottlePolicy struct {
	Window       time.Duration
	MaxPerUserIP int
	MaxPerIP     int
}

var DefaultThrottlePolicy = ThrottlePolicy{
	Window:       600 * time.Second,
	MaxPerUserIP: 10,
	MaxPerIP:     30,
}

// Throttle is a sliding-window limiter over the attempt ledger. It keeps
// no in-memory counters.
type Throttle struct {
	store  AttemptStore
	policy ThrottlePolicy
	now    func() time.Time
}

func NewThrottle(store AttemptStore, policy ThrottlePolicy) *Throttle {
	return &Throttle{store: store, policy: policy, now: time.Now}
}

func (t *Throttle) Policy() ThrottlePolicy { return t.policy }

// RecordAttempt appends one row to the ledger.
func (t *Throttle) RecordAttempt(ctx context.Context, username, ip string) error {
	return t.store.RecordLoginAttempt(ctx, models.LoginAttempt{
		Username: username,
		IP:       ip,
		TS:       t.now().Unix(),
	})
}

// CountsInWindow counts attempts with ts > now-window for (username, ip)
// and for ip alone.
func (t *Throttle) CountsInWindow(ctx context.Context, username, ip string, window time.Duration) (int, int, error) {
	since := t.now().Unix() - int64(window/time.Second)
	return t.store.CountLoginAttempts(ctx, username, ip, since)
}

// Check returns ErrThrottled when either budget is exceeded.
func (t *Throttle) Check(ctx context.Context, username, ip string) error {
	byUserIP, byIP, err := t.CountsInWindow(ctx, username, ip, t.policy.Window)
	if err != nil {
		return err
	}
	if byUserIP > t.policy.MaxPerUserIP || byIP > t.policy.MaxPerIP {
		return ErrThrottled
	}
	return nil
}
