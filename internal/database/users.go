package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ovpnadmin/internal/models"
)

const userColumns = "id, username, pw_hash, disabled, created_at, updated_at"

func (d *DB) CreateUser(ctx context.Context, user *models.User) error {
	_, err := d.ExecContext(ctx,
		"INSERT INTO users (id, username, pw_hash, disabled, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		user.ID, user.Username, user.PasswordHash, user.Disabled, user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByUsername looks the user up case-sensitively.
func (d *DB) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := d.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
	return scanUser(row)
}

func (d *DB) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	row := d.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

func (d *DB) SetUserDisabled(ctx context.Context, id string, disabled bool, now int64) error {
	result, err := d.ExecContext(ctx,
		"UPDATE users SET disabled = ?, updated_at = ? WHERE id = ?",
		disabled, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DB) UpdateUserPassword(ctx context.Context, id, hash string, now int64) error {
	result, err := d.ExecContext(ctx,
		"UPDATE users SET pw_hash = ?, updated_at = ? WHERE id = ?",
		hash, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers returns every user ordered by username.
func (d *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := d.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (d *DB) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := d.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// AssignRole creates the role on first use and links it to the user.
// Assigning a role the user already holds is a no-op.
func (d *DB) AssignRole(ctx context.Context, userID, role string) error {
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO roles (name) VALUES (?)", role); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO user_roles (user_id, role_name) VALUES (?, ?)",
			userID, role,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

func (d *DB) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := d.QueryContext(ctx,
		"SELECT role_name FROM user_roles WHERE user_id = ? ORDER BY role_name",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user             models.User
		created, updated int64
	)
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Disabled, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.CreatedAt = time.Unix(created, 0).UTC()
	user.UpdatedAt = time.Unix(updated, 0).UTC()
	return &user, nil
}
