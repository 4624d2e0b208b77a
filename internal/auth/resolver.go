package auth

import (
	"context"
	"errors"
	"strings"

	"portico.dev/internal/store"
)

const bearerScheme = "Bearer "

// Resolver turns an Authorization header into a Principal. The token only
// proves who the caller is; org and role are re-read from the current user row
// so a role change takes effect on the next request even while older access
// tokens are still circulating.
type Resolver struct {
	users store.UserStore
	codec *Codec
}

// NewResolver constructs a Resolver.
func NewResolver(users store.UserStore, codec *Codec) *Resolver {
	return &Resolver{users: users, codec: codec}
}

// Resolve authenticates the bearer token from the given Authorization header
// value. Missing credential, any decode failure and unknown subject all return
// the same ErrUnauthorized; the boundary never distinguishes reasons.
func (r *Resolver) Resolve(ctx context.Context, authorization string) (Principal, error) {
	token, err := extractBearerToken(authorization)
	if err != nil {
		return Principal{}, ErrUnauthorized
	}
	claims, err := r.codec.Decode(token, TokenTypeAccess)
	if err != nil {
		return Principal{}, ErrUnauthorized
	}
	user, err := r.users.FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Principal{}, ErrUnauthorized
		}
		return Principal{}, err
	}
	role, err := ParseRole(user.Role)
	if err != nil {
		return Principal{}, ErrUnauthorized
	}
	return Principal{
		UserID: user.ID,
		OrgID:  user.OrgID,
		Email:  user.Email,
		Role:   role,
	}, nil
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearerScheme)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearerScheme):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
