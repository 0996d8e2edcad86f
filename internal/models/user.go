package models

import "time"

const (
	RoleAdmin    = "ADMIN"
	RoleOps      = "OPS"
	RoleReadOnly = "READONLY"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Disabled     bool      `json:"disabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
