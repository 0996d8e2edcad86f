package database

import (
	"context"
	"fmt"

	"ovpnadmin/internal/models"
)

func (d *DB) RecordLoginAttempt(ctx context.Context, attempt models.LoginAttempt) error {
	_, err := d.ExecContext(ctx,
		"INSERT INTO login_attempts (username, ip, ts) VALUES (?, ?, ?)",
		attempt.Username, attempt.IP, attempt.TS,
	)
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

// CountLoginAttempts counts attempts newer than since, first for the
// (username, ip) pair and then for the ip alone.
func (d *DB) CountLoginAttempts(ctx context.Context, username, ip string, since int64) (int, int, error) {
	var byUserIP, byIP int
	err := d.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM login_attempts WHERE username = ? AND ip = ? AND ts > ?",
		username, ip, since,
	).Scan(&byUserIP)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count login attempts: %w", err)
	}

	err = d.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM login_attempts WHERE ip = ? AND ts > ?",
		ip, since,
	).Scan(&byIP)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count login attempts: %w", err)
	}

	return byUserIP, byIP, nil
}
