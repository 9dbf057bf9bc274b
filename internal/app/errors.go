package app

import (
	"errors"

	"chatbuddy/internal/transcript"
)

var (
	ErrNameRequired             = errors.New("name required")
	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrInvalidEmail             = errors.New("invalid email address")
	ErrMessageRequired          = errors.New("message required")

	// ErrEmailAlreadyExists is returned by SignUp for a registered email.
	ErrEmailAlreadyExists = errors.New("user already registered")

	// ErrUserNotRegistered covers both unknown login emails and tokens whose
	// subject no longer has a record.
	ErrUserNotRegistered = transcript.ErrUserNotFound
	ErrPermissionDenied  = transcript.ErrPermissionDenied

	ErrInvalidCredentials = errors.New("incorrect password")

	// ErrCompletionFailed wraps any provider failure during Converse.
	ErrCompletionFailed = errors.New("completion failed")
)
