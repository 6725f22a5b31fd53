package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alphabot-ai/inkpost/internal/model"
	"github.com/alphabot-ai/inkpost/internal/store/sqlstore"
)

func newTestService(t *testing.T, ttl time.Duration) (*Service, *sqlstore.Store) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	st, err := sqlstore.Open(context.Background(), fmt.Sprintf("file:auth_%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	hasher, err := NewHasher(HasherConfig{Iterations: 1000})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	return NewService(st, hasher, "test-secret", ttl, nil), st
}

func TestRegisterFirstIdentityIsAdmin(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)
	ctx := context.Background()

	a, err := svc.Register(ctx, "Alice", "alice@example.com", "pw-a")
	if err != nil {
		t.Fatalf("register a: %v", err)
	}
	b, err := svc.Register(ctx, "Bob", "bob@example.com", "pw-b")
	if err != nil {
		t.Fatalf("register b: %v", err)
	}
	if !a.IsAdmin || b.IsAdmin {
		t.Fatalf("expected only the first identity to be admin: a=%v b=%v", a.IsAdmin, b.IsAdmin)
	}
	if a.PasswordHash == "pw-a" || !strings.HasPrefix(a.PasswordHash, "pbkdf2:sha256:") {
		t.Fatalf("password not hashed: %q", a.PasswordHash)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, st := newTestService(t, time.Hour)
	ctx := context.Background()

	first, err := svc.Register(ctx, "Alice", "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err = svc.Register(ctx, "Alice Again", "alice@example.com", "other")
	if !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity, got %v", err)
	}

	stored, err := st.GetIdentityByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if stored.ID != first.ID || stored.Name != "Alice" {
		t.Fatalf("original identity changed: %+v", stored)
	}
	if _, err := st.GetIdentity(ctx, first.ID+1); err == nil {
		t.Fatalf("no second identity should be persisted")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	_, err := svc.Register(context.Background(), " ", "not-an-email", "")
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"name", "email", "password"} {
		if _, ok := ve.Fields[field]; !ok {
			t.Fatalf("expected %s to fail validation: %v", field, ve.Fields)
		}
	}
}

func TestConcurrentRegistrationsElectOneAdmin(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	const n = 5
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		admins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ident, err := svc.Register(context.Background(), "u", fmt.Sprintf("u%d@example.com", i), "pw")
			if err != nil {
				t.Errorf("register %d: %v", i, err)
				return
			}
			if ident.IsAdmin {
				mu.Lock()
				admins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if admins != 1 {
		t.Fatalf("expected exactly one admin, got %d", admins)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "Alice", "alice@example.com", "correct horse"); err != nil {
		t.Fatalf("register: %v", err)
	}

	ident, err := svc.Authenticate(ctx, "alice@example.com", "correct horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if ident.Email != "alice@example.com" {
		t.Fatalf("unexpected identity %+v", ident)
	}

	if _, err := svc.Authenticate(ctx, "nobody@example.com", "x"); !errors.Is(err, ErrUnknownIdentity) {
		t.Fatalf("expected ErrUnknownIdentity, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)
	ctx := context.Background()
	ident, err := svc.Register(ctx, "Alice", "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	sess, err := svc.IssueSession(ctx, ident)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := svc.Resolve(ctx, sess.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != ident.ID {
		t.Fatalf("resolved wrong identity %d", got.ID)
	}

	if err := svc.EndSession(ctx, sess.Token); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if _, err := svc.Resolve(ctx, sess.Token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ended session to be invalid, got %v", err)
	}

	for _, tok := range []string{sess.Token, "", "garbage"} {
		if err := svc.EndSession(ctx, tok); err != nil {
			t.Fatalf("EndSession(%q) should be a no-op, got %v", tok, err)
		}
	}
}

func TestSessionRejectsForgedAndExpired(t *testing.T) {
	svc, st := newTestService(t, time.Hour)
	ctx := context.Background()
	ident, err := svc.Register(ctx, "Alice", "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	sess, err := svc.IssueSession(ctx, ident)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := NewService(st, svc.hasher, "another-secret", time.Hour, nil)
	if _, err := other.Resolve(ctx, sess.Token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("token signed with another secret must not resolve, got %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := svc.Resolve(ctx, sess.Token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expired token must not resolve, got %v", err)
	}
	n, err := svc.PruneSessions(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 pruned session, got %d %v", n, err)
	}
}
