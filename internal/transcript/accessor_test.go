package transcript

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chatbuddy/internal/keylock"
	"chatbuddy/pkg/domain"
	"chatbuddy/pkg/store"
)

type failingSaveStore struct {
	*store.MemoryStore
	err error
}

func (s *failingSaveStore) SaveChats(ctx context.Context, userID string, chats []domain.Message) error {
	if s.err != nil {
		return s.err
	}
	return s.MemoryStore.SaveChats(ctx, userID, chats)
}

func seededStore(t *testing.T, ids ...string) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	for _, id := range ids {
		u := domain.User{ID: id, Name: id, Email: id + "@example.com", PasswordHash: "x", CreatedAt: time.Now().UTC()}
		if err := s.CreateUser(context.Background(), u); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	return s
}

func newAccessor(t *testing.T, s store.Store) *Accessor {
	t.Helper()
	a, err := New(Config{Store: s, Locker: keylock.NewMemoryLocker(), StoreTimeout: time.Second})
	if err != nil {
		t.Fatalf("new accessor: %v", err)
	}
	return a
}

func identity(id string) domain.Identity {
	return domain.Identity{SubjectID: id, Email: id + "@example.com"}
}

func TestAppendPreservesOrder(t *testing.T) {
	a := newAccessor(t, seededStore(t, "u1"))
	ctx := context.Background()
	id := identity("u1")

	if _, err := a.Append(ctx, id, domain.Message{Role: domain.RoleUser, Content: "one"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	u, err := a.Append(ctx, id,
		domain.Message{Role: domain.RoleAssistant, Content: "two"},
		domain.Message{Role: domain.RoleUser, Content: "three"},
	)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	want := []string{"one", "two", "three"}
	if len(u.Chats) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(u.Chats))
	}
	for i, content := range want {
		if u.Chats[i].Content != content {
			t.Fatalf("message %d: got %q want %q", i, u.Chats[i].Content, content)
		}
	}
}

func TestAppendRejectsUnknownRole(t *testing.T) {
	a := newAccessor(t, seededStore(t, "u1"))
	_, err := a.Append(context.Background(), identity("u1"), domain.Message{Role: "system", Content: "x"})
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestClearEmptiesTranscript(t *testing.T) {
	a := newAccessor(t, seededStore(t, "u1"))
	ctx := context.Background()
	id := identity("u1")
	for i := 0; i < 4; i++ {
		if _, err := a.Append(ctx, id, domain.Message{Role: domain.RoleUser, Content: fmt.Sprint(i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	u, err := a.Clear(ctx, id)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(u.Chats) != 0 {
		t.Fatalf("expected empty transcript, got %d", len(u.Chats))
	}
	u, err = a.Read(ctx, id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if u.Chats == nil || len(u.Chats) != 0 {
		t.Fatalf("expected empty persisted transcript, got %#v", u.Chats)
	}
}

func TestUnknownSubjectIsNotFound(t *testing.T) {
	a := newAccessor(t, seededStore(t))
	if _, err := a.Read(context.Background(), identity("ghost")); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := a.Clear(context.Background(), identity("ghost")); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound on clear, got %v", err)
	}
}

func TestAuthorizeRequiresOwnership(t *testing.T) {
	a := newAccessor(t, seededStore(t))
	owner := domain.User{ID: "b"}
	if err := a.Authorize(identity("a"), owner); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if err := a.Authorize(domain.Identity{}, domain.User{}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("empty subject must not match empty record id, got %v", err)
	}
	if err := a.Authorize(identity("b"), owner); err != nil {
		t.Fatalf("owner rejected: %v", err)
	}
}

func TestMutateErrorLeavesTranscriptUntouched(t *testing.T) {
	a := newAccessor(t, seededStore(t, "u1"))
	ctx := context.Background()
	id := identity("u1")
	if _, err := a.Append(ctx, id, domain.Message{Role: domain.RoleUser, Content: "keep"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	boom := errors.New("provider down")
	_, err := a.Mutate(ctx, id, func(_ context.Context, chats []domain.Message) ([]domain.Message, error) {
		chats[0].Content = "scribbled"
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	u, _ := a.Read(ctx, id)
	if len(u.Chats) != 1 || u.Chats[0].Content != "keep" {
		t.Fatalf("transcript changed after failed mutation: %+v", u.Chats)
	}
}

func TestMutateSavesAfterCallerCancels(t *testing.T) {
	a := newAccessor(t, seededStore(t, "u1"))
	ctx, cancel := context.WithCancel(context.Background())
	id := identity("u1")
	_, err := a.Mutate(ctx, id, func(_ context.Context, chats []domain.Message) ([]domain.Message, error) {
		cancel()
		return append(chats, domain.Message{Role: domain.RoleUser, Content: "late"}), nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	u, err := a.Read(context.Background(), id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(u.Chats) != 1 || u.Chats[0].Content != "late" {
		t.Fatalf("expected committed change, got %+v", u.Chats)
	}
}

func TestMutateReportsSaveFailure(t *testing.T) {
	s := &failingSaveStore{MemoryStore: seededStore(t, "u1"), err: errors.New("disk full")}
	a := newAccessor(t, s)
	_, err := a.Append(context.Background(), identity("u1"), domain.Message{Role: domain.RoleUser, Content: "x"})
	if err == nil || errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}

func TestConcurrentAppendsAreNotLost(t *testing.T) {
	a := newAccessor(t, seededStore(t, "u1"))
	id := identity("u1")
	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := a.Mutate(context.Background(), id, func(_ context.Context, chats []domain.Message) ([]domain.Message, error) {
				time.Sleep(time.Millisecond)
				return append(chats, domain.Message{Role: domain.RoleUser, Content: fmt.Sprint(i)}), nil
			})
			if err != nil {
				t.Errorf("mutate %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	u, err := a.Read(context.Background(), id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(u.Chats) != n {
		t.Fatalf("lost updates: expected %d messages, got %d", n, len(u.Chats))
	}
}
