package user

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/frahmantamala/clinic-management/internal"
	"github.com/frahmantamala/clinic-management/internal/activity"
	"github.com/frahmantamala/clinic-management/internal/audit"
	"github.com/frahmantamala/clinic-management/internal/auth"
	"github.com/frahmantamala/clinic-management/internal/listing"
	"github.com/frahmantamala/clinic-management/internal/transport"
)

type ServiceAPI interface {
	List(ctx context.Context, params listing.Params) (listing.Page[UserResponse], error)
	Get(ctx context.Context, id int64) (*UserResponse, error)
	Create(ctx context.Context, actor *audit.Actor, dto UserDTO) (*User, error)
	Update(ctx context.Context, actor *audit.Actor, id int64, dto UserDTO) (*User, error)
	Delete(ctx context.Context, actor *audit.Actor, id int64) error
	Restore(ctx context.Context, actor *audit.Actor, id int64) (*User, error)
	ForceDelete(ctx context.Context, actor *audit.Actor, id int64) error
	Activity(ctx context.Context, id int64) ([]activity.Group, error)
	Options() OptionsResponse
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := h.Service.List(r.Context(), listing.ParseParams(r.URL.Query()))
	if err != nil {
		h.Logger.Error("ListUsers: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrUserNotFound)
		return
	}

	u, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var dto UserDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.Logger.Warn("CreateUser: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.Service.Create(r.Context(), auth.ActorFromContext(r.Context()), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CreateUser: user created", "user_id", u.ID)
	h.WriteFlash(w, http.StatusCreated, transport.Flash{
		Message:  "User created successfully.",
		Type:     transport.FlashSuccess,
		Redirect: fmt.Sprintf("/users/%d", u.ID),
		Data:     u.ToResponse(),
	})
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrUserNotFound)
		return
	}

	var dto UserDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.Logger.Warn("UpdateUser: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.Service.Update(r.Context(), auth.ActorFromContext(r.Context()), id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteFlash(w, http.StatusOK, transport.Flash{
		Message:  "User updated successfully.",
		Type:     transport.FlashSuccess,
		Redirect: fmt.Sprintf("/users/%d", u.ID),
		Data:     u.ToResponse(),
	})
}

// DeleteUser answers a self-delete with an error flash and a 200, leaving the account intact.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrUserNotFound)
		return
	}

	if err := h.Service.Delete(r.Context(), auth.ActorFromContext(r.Context()), id); err != nil {
		if errors.Is(err, internal.ErrCannotDeleteSelf) {
			h.WriteFlash(w, http.StatusOK, transport.Flash{
				Message: internal.ErrCannotDeleteSelf.Message,
				Type:    transport.FlashError,
			})
			return
		}
		h.HandleServiceError(w, err)
		return
	}

	h.WriteFlash(w, http.StatusOK, transport.Flash{
		Message:  "User deleted successfully.",
		Type:     transport.FlashSuccess,
		Redirect: "/users",
	})
}

func (h *Handler) RestoreUser(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrUserNotFound)
		return
	}

	u, err := h.Service.Restore(r.Context(), auth.ActorFromContext(r.Context()), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteFlash(w, http.StatusOK, transport.Flash{
		Message:  "User restored successfully.",
		Type:     transport.FlashSuccess,
		Redirect: fmt.Sprintf("/users/%d", u.ID),
	})
}

func (h *Handler) ForceDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrUserNotFound)
		return
	}

	if err := h.Service.ForceDelete(r.Context(), auth.ActorFromContext(r.Context()), id); err != nil {
		if errors.Is(err, internal.ErrCannotDeleteSelf) {
			h.WriteFlash(w, http.StatusOK, transport.Flash{
				Message: internal.ErrCannotDeleteSelf.Message,
				Type:    transport.FlashError,
			})
			return
		}
		h.HandleServiceError(w, err)
		return
	}

	h.WriteFlash(w, http.StatusOK, transport.Flash{
		Message:  "User permanently deleted.",
		Type:     transport.FlashSuccess,
		Redirect: "/users",
	})
}

func (h *Handler) UserActivity(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrUserNotFound)
		return
	}

	groups, err := h.Service.Activity(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"activities": groups})
}

func (h *Handler) UserOptions(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.Service.Options())
}
