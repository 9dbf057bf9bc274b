// Package transcript owns reads and writes of a user's ordered chat history.
// Every write is serialized per subject and persisted with a single save.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatbuddy/internal/keylock"
	"chatbuddy/pkg/domain"
	"chatbuddy/pkg/store"
)

var (
	ErrUserNotFound     = errors.New("user not registered")
	ErrPermissionDenied = errors.New("permissions didn't match")
	ErrInvalidMessage   = errors.New("invalid transcript message")
)

const defaultStoreTimeout = 5 * time.Second

// MutateFunc receives a private copy of the transcript and returns the
// transcript to persist. Returning an error discards the change.
type MutateFunc func(ctx context.Context, chats []domain.Message) ([]domain.Message, error)

// Config wires an Accessor.
type Config struct {
	Store        store.Store
	Locker       keylock.Locker
	StoreTimeout time.Duration
}

// Accessor loads and mutates transcripts on behalf of an authenticated subject.
type Accessor struct {
	store        store.Store
	locker       keylock.Locker
	storeTimeout time.Duration
}

// New validates cfg. A nil Locker falls back to an in-process lock.
func New(cfg Config) (*Accessor, error) {
	if cfg.Store == nil {
		return nil, errors.New("transcript store required")
	}
	locker := cfg.Locker
	if locker == nil {
		locker = keylock.NewMemoryLocker()
	}
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &Accessor{store: cfg.Store, locker: locker, storeTimeout: timeout}, nil
}

// Load fetches the user record for subjectID.
func (a *Accessor) Load(ctx context.Context, subjectID string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()
	u, ok, err := a.store.GetUserByID(ctx, subjectID)
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return u, nil
}

// Authorize rejects access to a record the identity does not own.
func (a *Accessor) Authorize(id domain.Identity, u domain.User) error {
	if id.SubjectID == "" || id.SubjectID != u.ID {
		return ErrPermissionDenied
	}
	return nil
}

// Read returns the caller's own record after the ownership check.
func (a *Accessor) Read(ctx context.Context, id domain.Identity) (domain.User, error) {
	u, err := a.Load(ctx, id.SubjectID)
	if err != nil {
		return domain.User{}, err
	}
	if err := a.Authorize(id, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Append adds msgs to the end of the caller's transcript.
func (a *Accessor) Append(ctx context.Context, id domain.Identity, msgs ...domain.Message) (domain.User, error) {
	for _, m := range msgs {
		if !m.Role.Valid() {
			return domain.User{}, fmt.Errorf("%w: role %q", ErrInvalidMessage, m.Role)
		}
	}
	return a.Mutate(ctx, id, func(_ context.Context, chats []domain.Message) ([]domain.Message, error) {
		return append(chats, msgs...), nil
	})
}

// Clear empties the caller's transcript.
func (a *Accessor) Clear(ctx context.Context, id domain.Identity) (domain.User, error) {
	return a.Mutate(ctx, id, func(context.Context, []domain.Message) ([]domain.Message, error) {
		return []domain.Message{}, nil
	})
}

// Mutate runs fn under the subject's lock and saves its result once.
// Once fn has succeeded the save no longer follows ctx cancellation, so a
// finished change is either fully persisted or reported as a store error.
func (a *Accessor) Mutate(ctx context.Context, id domain.Identity, fn MutateFunc) (domain.User, error) {
	unlock, err := a.locker.Lock(ctx, lockKey(id.SubjectID))
	if err != nil {
		return domain.User{}, fmt.Errorf("lock transcript: %w", err)
	}
	defer unlock()

	u, err := a.Read(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	next, err := fn(ctx, domain.CloneMessages(u.Chats))
	if err != nil {
		return domain.User{}, err
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.storeTimeout)
	defer cancel()
	if err := a.store.SaveChats(saveCtx, u.ID, next); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("save transcript: %w", err)
	}
	u.Chats = domain.CloneMessages(next)
	return u, nil
}

func lockKey(subjectID string) string {
	return "transcript:" + subjectID
}
