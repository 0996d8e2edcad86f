package database

import (
	"context"
	"fmt"

	"ovpnadmin/internal/models"
)

func (d *DB) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	details := string(entry.Details)
	if details == "" {
		details = "{}"
	}
	_, err := d.ExecContext(ctx,
		"INSERT INTO audit (id, ts, actor_user, action, target, ip, ua, details) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		entry.ID, entry.TS, entry.ActorUser, entry.Action, entry.Target, entry.IP, entry.UserAgent, details,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListAudit returns entries newest first. Callers are responsible for
// clamping limit.
func (d *DB) ListAudit(ctx context.Context, limit, offset int) ([]models.AuditEntry, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT id, ts, actor_user, action, target, ip, ua, details
		FROM audit
		ORDER BY ts DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]models.AuditEntry, 0, limit)
	for rows.Next() {
		var (
			e       models.AuditEntry
			details string
		)
		if err := rows.Scan(&e.ID, &e.TS, &e.ActorUser, &e.Action, &e.Target, &e.IP, &e.UserAgent, &details); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Details = []byte(details)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}
