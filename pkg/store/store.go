package store

import (
	"context"
	"errors"

	"chatbuddy/pkg/domain"
)

var (
	// ErrUserNotFound is returned by writes that target a missing user record.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when a user is created with a registered email.
	ErrEmailTaken = errors.New("email already registered")
)

// Store defines persistence operations for user records and their transcripts.
type Store interface {
	CreateUser(ctx context.Context, u domain.User) error
	HasUserEmail(ctx context.Context, email string) (bool, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
	ListUsers(ctx context.Context) ([]domain.User, error)

	// SaveChats replaces the user's transcript in a single write.
	SaveChats(ctx context.Context, userID string, chats []domain.Message) error
}
