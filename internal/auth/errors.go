package auth

import "errors"

var (
	// ErrInvalidCredentials is the single externally visible login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrUnknownUser  = wrapCredentials("unknown user")
	ErrUserDisabled = wrapCredentials("user disabled")
	ErrBadPassword  = wrapCredentials("bad password")

	ErrUserExists      = errors.New("user already exists")
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrThrottled       = errors.New("too many login attempts")
	ErrForbidden       = errors.New("forbidden")

	ErrPasswordTooShort = errors.New("password too short")
)

type credentialsError struct {
	reason string
}

func wrapCredentials(reason string) error {
	return &credentialsError{reason: reason}
}

func (e *credentialsError) Error() string { return "invalid credentials: " + e.reason }

func (e *credentialsError) Unwrap() error { return ErrInvalidCredentials }
