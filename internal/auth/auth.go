package auth

import (
	"context"
	"time"

	"github.com/frahmantamala/clinic-management/internal"
	"github.com/frahmantamala/clinic-management/internal/audit"
	"github.com/frahmantamala/clinic-management/internal/core/person"
	"github.com/golang-jwt/jwt/v5"
)

// User is the authenticated staff member attached to the request context.
type User struct {
	ID          int64    `json:"id"`
	Email       string   `json:"email"`
	Role        Role     `json:"role"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Permissions []string `json:"permissions"`
}

func (u *User) FullName() string {
	return person.FullName(u.FirstName, u.LastName)
}

func (u *User) HasPermission(permission string) bool {
	for _, p := range u.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

func (u *User) HasAnyPermission(permissions []string) bool {
	for _, required := range permissions {
		if u.HasPermission(required) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Actor converts the authenticated user into the audit actor passed to services.
func (u *User) Actor() *audit.Actor {
	if u == nil {
		return nil
	}
	return &audit.Actor{ID: u.ID, FullName: u.FullName()}
}

func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, internal.ContextUserKey, u)
}

func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(internal.ContextUserKey).(*User)
	return u, ok && u != nil
}

// ActorFromContext returns nil when no user is authenticated.
func ActorFromContext(ctx context.Context) *audit.Actor {
	u, ok := UserFromContext(ctx)
	if !ok {
		return nil
	}
	return u.Actor()
}

// Credentials is what the repository returns for a login attempt.
type Credentials struct {
	UserID       int64
	Email        string
	PasswordHash string
}

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

const (
	tokenUseAccess  = "access"
	tokenUseRefresh = "refresh"
)

// Claims represents JWT token claims
type Claims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Use    string `json:"use"`
	jwt.RegisteredClaims
}

type JWTTokenGenerator struct {
	AccessTokenSecret  []byte
	RefreshTokenSecret []byte
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	now                func() time.Time
}
