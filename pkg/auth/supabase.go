package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/supabase-community/supabase-go"
)

// SupabaseVerifier asks the Supabase auth server who a token belongs to.
// It is used where the JWT secret is not available, e.g. the websocket
// connect function.
type SupabaseVerifier struct {
	client *supabase.Client
}

// NewSupabaseVerifier creates a verifier backed by the service role key
func NewSupabaseVerifier(url, serviceRoleKey string) (*SupabaseVerifier, error) {
	client, err := supabase.NewClient(url, serviceRoleKey, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseVerifier{client: client}, nil
}

// Verify implements TokenVerifier. GetUser takes no context; the call is
// bounded by the client's own HTTP timeout.
func (v *SupabaseVerifier) Verify(_ context.Context, token string) (*UserContext, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, ErrMissingToken
	}
	user, err := v.client.Auth.WithToken(token).GetUser()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	roles := []string{DefaultAudience}
	if user.Role != "" && user.Role != DefaultAudience {
		roles = append(roles, user.Role)
	}
	return &UserContext{UserID: user.ID.String(), Email: user.Email, Roles: roles}, nil
}
