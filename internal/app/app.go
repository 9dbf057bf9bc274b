package app

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"chatbuddy/internal/keylock"
	"chatbuddy/internal/transcript"
	"chatbuddy/internal/util"
	"chatbuddy/pkg/ai"
	"chatbuddy/pkg/auth"
	"chatbuddy/pkg/domain"
	"chatbuddy/pkg/session"
	"chatbuddy/pkg/store"
)

const (
	defaultCompletionTimeout = 60 * time.Second
	defaultStoreTimeout      = 5 * time.Second
)

// Config holds runtime configuration for the core application.
type Config struct {
	Store             store.Store
	Locker            keylock.Locker
	Completer         ai.Completer
	Tokens            *session.TokenService
	SessionTTL        time.Duration
	CompletionTimeout time.Duration
	StoreTimeout      time.Duration
}

// App wires accounts, sessions and transcripts together.
type App struct {
	store             store.Store
	transcripts       *transcript.Accessor
	completer         ai.Completer
	tokens            *session.TokenService
	sessionTTL        time.Duration
	completionTimeout time.Duration
	storeTimeout      time.Duration
}

// New validates cfg and constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Completer == nil {
		return nil, errors.New("completer required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token service required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = session.DefaultCookieTTL
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = defaultCompletionTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	transcripts, err := transcript.New(transcript.Config{
		Store:        cfg.Store,
		Locker:       cfg.Locker,
		StoreTimeout: cfg.StoreTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &App{
		store:             cfg.Store,
		transcripts:       transcripts,
		completer:         cfg.Completer,
		tokens:            cfg.Tokens,
		sessionTTL:        cfg.SessionTTL,
		completionTimeout: cfg.CompletionTimeout,
		storeTimeout:      cfg.StoreTimeout,
	}, nil
}

// SessionTTL is the lifetime of issued tokens and their cookies.
func (a *App) SessionTTL() time.Duration {
	return a.sessionTTL
}

// SignUp registers a user with an empty transcript and issues a token.
func (a *App) SignUp(ctx context.Context, name, email, password string) (domain.User, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.User{}, "", ErrNameRequired
	}
	email, err := normalizeCredentials(email, password)
	if err != nil {
		return domain.User{}, "", err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}

	sctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()
	exists, err := a.store.HasUserEmail(sctx, email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrEmailAlreadyExists
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Chats:        []domain.Message{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateUser(sctx, user); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return domain.User{}, "", ErrEmailAlreadyExists
		}
		return domain.User{}, "", fmt.Errorf("create user: %w", err)
	}
	token, err := a.tokens.Issue(user.ID, user.Email, a.sessionTTL)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Login verifies credentials and issues a fresh token.
func (a *App) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	email, err := normalizeCredentials(email, password)
	if err != nil {
		return domain.User{}, "", err
	}
	sctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()
	user, ok, err := a.store.GetUserByEmail(sctx, email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return domain.User{}, "", ErrUserNotRegistered
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.tokens.Issue(user.ID, user.Email, a.sessionTTL)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// CurrentUser returns the record the identity owns.
func (a *App) CurrentUser(ctx context.Context, id domain.Identity) (domain.User, error) {
	return a.transcripts.Read(ctx, id)
}

// ListUsers returns every registered user.
func (a *App) ListUsers(ctx context.Context) ([]domain.User, error) {
	sctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()
	users, err := a.store.ListUsers(sctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Chats returns the caller's transcript.
func (a *App) Chats(ctx context.Context, id domain.Identity) ([]domain.Message, error) {
	u, err := a.transcripts.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.Chats, nil
}

// DeleteChats empties the caller's transcript.
func (a *App) DeleteChats(ctx context.Context, id domain.Identity) error {
	_, err := a.transcripts.Clear(ctx, id)
	return err
}

// Converse sends the caller's history plus text to the completion provider
// and persists the user turn and the reply together. When the provider
// fails nothing is written.
func (a *App) Converse(ctx context.Context, id domain.Identity, text string) ([]domain.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrMessageRequired
	}
	logger := util.LoggerFromContext(ctx)
	u, err := a.transcripts.Mutate(ctx, id, func(ctx context.Context, chats []domain.Message) ([]domain.Message, error) {
		chats = append(chats, domain.Message{Role: domain.RoleUser, Content: text})

		cctx, cancel := context.WithTimeout(ctx, a.completionTimeout)
		defer cancel()
		start := time.Now()
		reply, err := a.completer.Complete(cctx, chats)
		if err != nil {
			logger.Warn("completion_failed", "user_id", id.SubjectID, "history_len", len(chats), "err", err)
			return nil, fmt.Errorf("%w: %v", ErrCompletionFailed, err)
		}
		logger.Info("completion_ok", "user_id", id.SubjectID, "history_len", len(chats), "duration_ms", time.Since(start).Milliseconds())
		reply.Role = domain.RoleAssistant
		return append(chats, reply), nil
	})
	if err != nil {
		return nil, err
	}
	return u.Chats, nil
}

// normalizeCredentials trims and lowercases email and checks presence and shape.
func normalizeCredentials(email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", ErrEmailAndPasswordRequired
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
