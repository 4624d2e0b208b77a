package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"portico.dev/internal/ids"
	"portico.dev/internal/store"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
	minOrgNameLength  = 2
	maxOrgNameLength  = 200
)

// TokenPair is the result of a successful register, login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Role         Role
	OrgID        string
	UserID       string
}

// Sessions orchestrates the credential flows: registration, login and token
// refresh. It composes the store, the password hasher and the token codec and
// holds no state of its own.
type Sessions struct {
	store store.Store
	codec *Codec
}

// NewSessions constructs the session orchestrator.
func NewSessions(st store.Store, codec *Codec) (*Sessions, error) {
	if st == nil {
		return nil, errors.New("auth: store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: token codec is required")
	}
	return &Sessions{store: st, codec: codec}, nil
}

// Register creates a new organization together with its first user, who is
// always an admin. Both uniqueness checks run before any write; the store's
// unique constraints remain the final arbiter under concurrent registrations.
func (s *Sessions) Register(ctx context.Context, orgName, email, password string) (TokenPair, error) {
	orgName = strings.TrimSpace(orgName)
	if len(orgName) < minOrgNameLength || len(orgName) > maxOrgNameLength {
		return TokenPair{}, fmt.Errorf("%w: organization name must be %d-%d characters", store.ErrInvalidInput, minOrgNameLength, maxOrgNameLength)
	}
	email, err := NormalizeEmail(email)
	if err != nil {
		return TokenPair{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return TokenPair{}, err
	}

	if _, err := s.store.Organizations().FindByName(ctx, orgName); err == nil {
		return TokenPair{}, fmt.Errorf("%w: organization name already exists", store.ErrConflict)
	} else if !errors.Is(err, store.ErrNotFound) {
		return TokenPair{}, err
	}
	if _, err := s.store.Users().FindByEmail(ctx, email); err == nil {
		return TokenPair{}, fmt.Errorf("%w: email already registered", store.ErrConflict)
	} else if !errors.Is(err, store.ErrNotFound) {
		return TokenPair{}, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return TokenPair{}, err
	}
	org := &store.Organization{ID: ids.New(), Name: orgName}
	admin := &store.User{
		ID:           ids.New(),
		OrgID:        org.ID,
		Email:        email,
		PasswordHash: hash,
		Role:         string(RoleAdmin),
	}
	if err := s.store.CreateOrganizationWithAdmin(ctx, org, admin); err != nil {
		return TokenPair{}, err
	}
	return s.issuePair(admin)
}

// Login verifies credentials and issues a fresh token pair. An unknown email
// and a wrong password produce the identical ErrUnauthorized so accounts
// cannot be enumerated.
func (s *Sessions) Login(ctx context.Context, email, password string) (TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, ErrUnauthorized
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TokenPair{}, ErrUnauthorized
		}
		return TokenPair{}, err
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return TokenPair{}, ErrUnauthorized
	}
	return s.issuePair(user)
}

// Refresh exchanges a valid refresh token for a new token pair. The old
// refresh token stays valid until its own expiry; there is no revocation.
func (s *Sessions) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.codec.Decode(refreshToken, TokenTypeRefresh)
	if err != nil {
		return TokenPair{}, ErrUnauthorized
	}
	user, err := s.store.Users().FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TokenPair{}, ErrUnauthorized
		}
		return TokenPair{}, err
	}
	return s.issuePair(user)
}

func (s *Sessions) issuePair(user *store.User) (TokenPair, error) {
	role, err := ParseRole(user.Role)
	if err != nil {
		return TokenPair{}, err
	}
	access, err := s.codec.IssueAccess(user.Email, user.OrgID, role, user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.codec.IssueRefresh(user.Email)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		Role:         role,
		OrgID:        user.OrgID,
		UserID:       user.ID,
	}, nil
}

// NormalizeEmail lower-cases and validates a login identifier.
func NormalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(strings.ToLower(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", store.ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: valid email is required", store.ErrInvalidInput)
	}
	return email, nil
}

// ValidatePassword enforces the 8-128 character bounds before hashing.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be %d-%d characters", store.ErrInvalidInput, minPasswordLength, maxPasswordLength)
	}
	return nil
}
