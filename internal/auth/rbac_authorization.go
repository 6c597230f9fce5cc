package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/frahmantamala/clinic-management/internal"
	"github.com/frahmantamala/clinic-management/internal/transport"
	"github.com/go-chi/chi"
)

type PermissionAuthorizer interface {
	HasPermission(ctx context.Context, user *User, permission string) bool
}

// RolePermissionAuthorizer falls back to the role table when the context user
// was built without a permission list.
type RolePermissionAuthorizer struct{}

func (RolePermissionAuthorizer) HasPermission(_ context.Context, user *User, permission string) bool {
	if user.Permissions == nil {
		user = &User{Permissions: PermissionsFor(user.Role)}
	}
	return user.HasPermission(permission)
}

type RBACAuthorization struct {
	*transport.BaseHandler
	authorizer PermissionAuthorizer
}

func NewRBACAuthorization(authorizer PermissionAuthorizer, logger *slog.Logger) *RBACAuthorization {
	if authorizer == nil {
		authorizer = RolePermissionAuthorizer{}
	}
	return &RBACAuthorization{
		BaseHandler: transport.NewBaseHandler(logger),
		authorizer:  authorizer,
	}
}

func (ra *RBACAuthorization) Check(next http.HandlerFunc, permission string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			ra.Logger.Warn("authorization check failed: user not found in context")
			ra.HandleServiceError(w, internal.ErrInvalidToken)
			return
		}

		if !ra.authorizer.HasPermission(r.Context(), user, permission) {
			ra.Logger.WarnContext(r.Context(), "access denied: insufficient permissions",
				"user_id", user.ID,
				"required_permission", permission,
				"user_permissions", user.Permissions)
			ra.HandleServiceError(w, internal.ErrUnauthorizedAccess)
			return
		}

		next.ServeHTTP(w, r)
	}
}

func (ra *RBACAuthorization) Middleware(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return ra.Check(next.ServeHTTP, permission)
	}
}

// RequirePermissionOrSelf lets a user act on their own record (the chi URL
// param named idParam) without holding permission.
func (ra *RBACAuthorization) RequirePermissionOrSelf(permission, idParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if ok {
				if id, err := strconv.ParseInt(chi.URLParam(r, idParam), 10, 64); err == nil && id == user.ID {
					next.ServeHTTP(w, r)
					return
				}
			}
			ra.Check(next.ServeHTTP, permission)(w, r)
		})
	}
}
