package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ovpnadmin/internal/models"
)

func (d *DB) CreateSession(ctx context.Context, sess *models.Session) error {
	_, err := d.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, created_at, expires_at, last_auth_stepup) VALUES (?, ?, ?, ?, ?)",
		sess.ID, sess.UserID, sess.CreatedAt, sess.ExpiresAt, sess.LastStepUp,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (d *DB) LoadSession(ctx context.Context, id string) (*models.Session, error) {
	sess := models.Session{ID: id}
	err := d.QueryRowContext(ctx,
		"SELECT user_id, created_at, expires_at, last_auth_stepup FROM sessions WHERE id = ?",
		id,
	).Scan(&sess.UserID, &sess.CreatedAt, &sess.ExpiresAt, &sess.LastStepUp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &sess, nil
}

func (d *DB) TouchSessionStepUp(ctx context.Context, id string, ts int64) error {
	if _, err := d.ExecContext(ctx, "UPDATE sessions SET last_auth_stepup = ? WHERE id = ?", ts, id); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// DeleteSession removes the row. Deleting an unknown id is not an error.
func (d *DB) DeleteSession(ctx context.Context, id string) error {
	if _, err := d.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (d *DB) DeleteExpiredSessions(ctx context.Context, now int64) (int64, error) {
	result, err := d.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	return n, nil
}
