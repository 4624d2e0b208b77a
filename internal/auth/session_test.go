package auth

import (
	"context"
	"errors"
	"testing"

	"portico.dev/internal/store"
	"portico.dev/internal/store/memory"
)

func newTestSessions(t *testing.T) (*Sessions, *memory.Store) {
	t.Helper()
	st := memory.New()
	codec := newTestCodec(t)
	sessions, err := NewSessions(st, codec)
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}
	return sessions, st
}

func TestRegisterCreatesOrgWithAdmin(t *testing.T) {
	sessions, st := newTestSessions(t)
	ctx := context.Background()

	pair, err := sessions.Register(ctx, "Acme Labs", "Ada@Example.com", "correct horse")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if pair.Role != RoleAdmin {
		t.Fatalf("first user must be admin, got %q", pair.Role)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("incomplete token pair")
	}

	// The email is stored lowercased and the hash is not the plaintext.
	user, err := st.Users().FindByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.PasswordHash == "correct horse" {
		t.Fatalf("password stored in plaintext")
	}
	if user.OrgID != pair.OrgID {
		t.Fatalf("org mismatch: %s vs %s", user.OrgID, pair.OrgID)
	}

	org, err := st.Organizations().Find(ctx, pair.OrgID)
	if err != nil {
		t.Fatalf("Find org: %v", err)
	}
	if org.Name != "Acme Labs" {
		t.Fatalf("unexpected org name: %q", org.Name)
	}
}

func TestRegisterConflicts(t *testing.T) {
	sessions, _ := newTestSessions(t)
	ctx := context.Background()

	if _, err := sessions.Register(ctx, "Acme Labs", "ada@example.com", "correct horse"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := sessions.Register(ctx, "Acme Labs", "other@example.com", "correct horse"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate org name, got %v", err)
	}
	if _, err := sessions.Register(ctx, "Other Org", "ada@example.com", "correct horse"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	sessions, _ := newTestSessions(t)
	ctx := context.Background()

	cases := []struct {
		name, org, email, password string
	}{
		{"short org name", "A", "ada@example.com", "correct horse"},
		{"bad email", "Acme", "not-an-email", "correct horse"},
		{"short password", "Acme", "ada@example.com", "short"},
		{"long password", "Acme", "ada@example.com", string(make([]byte, 129))},
	}
	for _, tc := range cases {
		if _, err := sessions.Register(ctx, tc.org, tc.email, tc.password); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestLoginDoesNotEnumerateAccounts(t *testing.T) {
	sessions, _ := newTestSessions(t)
	ctx := context.Background()

	if _, err := sessions.Register(ctx, "Acme Labs", "ada@example.com", "correct horse"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, unknownErr := sessions.Login(ctx, "nobody@example.com", "correct horse")
	_, wrongErr := sessions.Login(ctx, "ada@example.com", "wrong password")
	if !errors.Is(unknownErr, ErrUnauthorized) || !errors.Is(wrongErr, ErrUnauthorized) {
		t.Fatalf("expected identical ErrUnauthorized, got %v and %v", unknownErr, wrongErr)
	}

	if _, err := sessions.Login(ctx, "ADA@example.com", "correct horse"); err != nil {
		t.Fatalf("case-insensitive login failed: %v", err)
	}
}

func TestRefreshIssuesNewPair(t *testing.T) {
	sessions, _ := newTestSessions(t)
	ctx := context.Background()

	pair, err := sessions.Register(ctx, "Acme Labs", "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	refreshed, err := sessions.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.AccessToken == "" || refreshed.RefreshToken == "" {
		t.Fatalf("incomplete refreshed pair")
	}
	if refreshed.UserID != pair.UserID || refreshed.OrgID != pair.OrgID {
		t.Fatalf("identity changed across refresh")
	}

	// An access token is not a refresh token.
	if _, err := sessions.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for access token, got %v", err)
	}
	if _, err := sessions.Refresh(ctx, "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for garbage, got %v", err)
	}
}

// stubUserStore lets resolver tests mutate the backing user row directly.
type stubUserStore struct {
	user *store.User
}

func (s *stubUserStore) Create(context.Context, *store.User) error { return nil }

func (s *stubUserStore) Find(_ context.Context, id string) (*store.User, error) {
	if s.user != nil && s.user.ID == id {
		cp := *s.user
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (s *stubUserStore) FindByEmail(_ context.Context, email string) (*store.User, error) {
	if s.user != nil && s.user.Email == email {
		cp := *s.user
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (s *stubUserStore) ListByOrg(context.Context, string) ([]*store.User, error) {
	return nil, nil
}

func TestResolverReflectsCurrentUserRow(t *testing.T) {
	codec := newTestCodec(t)
	users := &stubUserStore{user: &store.User{
		ID:    "user-1",
		OrgID: "org-1",
		Email: "ada@example.com",
		Role:  string(RoleAdmin),
	}}
	resolver := NewResolver(users, codec)
	ctx := context.Background()

	token, err := codec.IssueAccess("ada@example.com", "org-1", RoleAdmin, "user-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	principal, err := resolver.Resolve(ctx, "Bearer "+token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if principal.Email != "ada@example.com" || principal.Role != RoleAdmin {
		t.Fatalf("unexpected principal: %+v", principal)
	}

	// The scheme check is case-insensitive.
	if _, err := resolver.Resolve(ctx, "bearer "+token); err != nil {
		t.Fatalf("lowercase scheme rejected: %v", err)
	}

	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer not-a-token"} {
		if _, err := resolver.Resolve(ctx, header); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized for %q, got %v", header, err)
		}
	}

	// Role changes take effect on the next request, not at token expiry.
	users.user.Role = string(RoleViewer)
	principal, err = resolver.Resolve(ctx, "Bearer "+token)
	if err != nil {
		t.Fatalf("Resolve after role change: %v", err)
	}
	if principal.Role != RoleViewer {
		t.Fatalf("expected refreshed role viewer, got %q", principal.Role)
	}

	// A deleted user is unauthorized even with a live token.
	users.user = nil
	if _, err := resolver.Resolve(ctx, "Bearer "+token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for deleted user, got %v", err)
	}
}
