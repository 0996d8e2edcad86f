package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"ovpnadmin/internal/database"
	"ovpnadmin/internal/models"

	"github.com/google/uuid"
)

// UserStore is the storage the user service needs.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	SetUserDisabled(ctx context.Context, id string, disabled bool, now int64) error
	UpdateUserPassword(ctx context.Context, id, hash string, now int64) error
	ListUsers(ctx context.Context) ([]models.User, error)
	CountUsers(ctx context.Context) (int, error)
	AssignRole(ctx context.Context, userID, role string) error
	RolesForUser(ctx context.Context, userID string) ([]string, error)
}

// PasswordHasher is satisfied by *Hasher.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) bool
}

// dummyHash has valid production parameters so verifying against it costs
// the same as a real verification.
var dummyHash = fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
	DefaultParams.Memory, DefaultParams.Time, DefaultParams.Parallelism,
	base64.RawStdEncoding.EncodeToString(make([]byte, saltLength)),
	base64.RawStdEncoding.EncodeToString(make([]byte, keyLength)),
)

type UserService struct {
	store  UserStore
	hasher PasswordHasher
	now    func() time.Time
}

func NewUserService(store UserStore, hasher PasswordHasher) *UserService {
	return &UserService{store: store, hasher: hasher, now: time.Now}
}

func (s *UserService) Create(ctx context.Context, username, password string, roles ...string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user id: %w", err)
	}

	now := s.now().UTC().Truncate(time.Second)
	user := &models.User{
		ID:           id.String(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	for _, role := range roles {
		if err := s.AssignRole(ctx, user.ID, role); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// Authenticate checks username and password. Every failure wraps
// ErrInvalidCredentials; the concrete error tells which check failed.
// Storage errors are returned unwrapped and must be treated as a denial.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.hasher.Verify(password, dummyHash)
			return nil, ErrUnknownUser
		}
		return nil, err
	}

	if user.Disabled {
		s.hasher.Verify(password, dummyHash)
		return user, ErrUserDisabled
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return user, ErrBadPassword
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.store.FindUserByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.store.ListUsers(ctx)
}

// ChangePassword replaces the password after re-checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, id, current, next string) error {
	if err := ValidatePassword(next); err != nil {
		return err
	}

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, user.PasswordHash) {
		return ErrBadPassword
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	err = s.store.UpdateUserPassword(ctx, id, hash, s.now().Unix())
	if errors.Is(err, database.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// VerifyPassword checks password against the stored hash of user id.
func (s *UserService) VerifyPassword(ctx context.Context, id, password string) (bool, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return s.hasher.Verify(password, user.PasswordHash), nil
}

func (s *UserService) SetDisabled(ctx context.Context, id string, disabled bool) error {
	err := s.store.SetUserDisabled(ctx, id, disabled, s.now().Unix())
	if errors.Is(err, database.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

func (s *UserService) AssignRole(ctx context.Context, userID, role string) error {
	role = strings.ToUpper(strings.TrimSpace(role))
	if role == "" {
		return errors.New("role name is required")
	}
	return s.store.AssignRole(ctx, userID, role)
}

// Roles loads the user's role set from storage on every call.
func (s *UserService) Roles(ctx context.Context, userID string) (RoleSet, error) {
	roles, err := s.store.RolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return NewRoleSet(roles...), nil
}

// EnsureBootstrapAdmin creates an ADMIN account when no users exist yet.
// It does nothing without a configured password.
func (s *UserService) EnsureBootstrapAdmin(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if _, err := s.Create(ctx, username, password, models.RoleAdmin); err != nil {
		return false, err
	}
	return true, nil
}
