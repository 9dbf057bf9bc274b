package store

import (
	"context"
	"sync"
	"time"

	"chatbuddy/pkg/domain"
)

// MemoryStore keeps user records in-process. Used for tests and local runs.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]domain.User // key: user ID
	email  map[string]string      // email -> user ID
	orders []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]domain.User),
		email: make(map[string]string),
	}
}

// CreateUser registers a user.
func (m *MemoryStore) CreateUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.email[u.Email]; exists {
		return ErrEmailTaken
	}
	u.Chats = domain.CloneMessages(u.Chats)
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	m.orders = append(m.orders, u.ID)
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(_ context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, exists := m.users[id]
	return cloneUser(u), exists, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return cloneUser(u), ok, nil
}

// ListUsers returns users in registration order.
func (m *MemoryStore) ListUsers(_ context.Context) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0, len(m.orders))
	for _, id := range m.orders {
		if u, ok := m.users[id]; ok {
			res = append(res, cloneUser(u))
		}
	}
	return res, nil
}

// SaveChats replaces a user's transcript.
func (m *MemoryStore) SaveChats(_ context.Context, userID string, chats []domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Chats = domain.CloneMessages(chats)
	u.UpdatedAt = time.Now().UTC()
	m.users[userID] = u
	return nil
}

func cloneUser(u domain.User) domain.User {
	u.Chats = domain.CloneMessages(u.Chats)
	return u
}
