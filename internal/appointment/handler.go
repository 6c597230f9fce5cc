package appointment

import (
	"context"
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
	List(ctx context.Context, params listing.Params) (listing.Page[AppointmentResponse], error)
	Get(ctx context.Context, id int64) (*AppointmentResponse, error)
	Create(ctx context.Context, actor *audit.Actor, dto AppointmentDTO) (*Appointment, error)
	Update(ctx context.Context, actor *audit.Actor, id int64, dto AppointmentDTO) (*Appointment, error)
	Delete(ctx context.Context, actor *audit.Actor, id int64) error
	Restore(ctx context.Context, actor *audit.Actor, id int64) (*Appointment, error)
	ForceDelete(ctx context.Context, actor *audit.Actor, id int64) error
	Activity(ctx context.Context, id int64) ([]activity.Group, error)
	Calendar(ctx context.Context, start, end string) ([]CalendarEvent, error)
	Options(ctx context.Context) (*OptionsResponse, error)
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

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	page, err := h.Service.List(r.Context(), listing.ParseParams(r.URL.Query()))
	if err != nil {
		h.Logger.Error("ListAppointments: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrAppointmentNotFound)
		return
	}

	a, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var dto AppointmentDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.Logger.Warn("CreateAppointment: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := h.Service.Create(r.Context(), auth.ActorFromContext(r.Context()), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CreateAppointment: appointment created", "appointment_id", a.ID)
	h.WriteFlash(w, http.StatusCreated, transport.Flash{
		Message:  "Appointment created successfully.",
		Type:     transport.FlashSuccess,
		Redirect: fmt.Sprintf("/appointments/%d", a.ID),
		Data:     a.ToResponse(),
	})
}

func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrAppointmentNotFound)
		return
	}

	var dto AppointmentDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.Logger.Warn("UpdateAppointment: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := h.Service.Update(r.Context(), auth.ActorFromContext(r.Context()), id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteFlash(w, http.StatusOK, transport.Flash{
		Message:  "Appointment updated successfully.",
		Type:     transport.FlashSuccess,
		Redirect: fmt.Sprintf("/appointments/%d", a.ID),
		Data:     a.ToResponse(),
	})
}

func (h *Handler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrAppointmentNotFound)
		return
	}

	if err := h.Service.Delete(r.Context(), auth.ActorFromContext(r.Context()), id); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteFlash(w, http.StatusOK, transport.Flash{
		Message:  "Appointment deleted successfully.",
		Type:     transport.FlashSuccess,
		Redirect: "/appointments",
	})
}

func (h *Handler) RestoreAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrAppointmentNotFound)
		return
	}

	a, err := h.Service.Restore(r.Context(), auth.ActorFromContext(r.Context()), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteFlash(w, http.StatusOK, transport.Flash{
		Message:  "Appointment restored successfully.",
		Type:     transport.FlashSuccess,
		Redirect: fmt.Sprintf("/appointments/%d", a.ID),
	})
}

func (h *Handler) ForceDeleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrAppointmentNotFound)
		return
	}

	if err := h.Service.ForceDelete(r.Context(), auth.ActorFromContext(r.Context()), id); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteFlash(w, http.StatusOK, transport.Flash{
		Message:  "Appointment permanently deleted.",
		Type:     transport.FlashSuccess,
		Redirect: "/appointments",
	})
}

func (h *Handler) AppointmentActivity(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrAppointmentNotFound)
		return
	}

	groups, err := h.Service.Activity(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"activities": groups})
}

func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	events, err := h.Service.Calendar(r.Context(), q.Get("start"), q.Get("end"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) AppointmentOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := h.Service.Options(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, opts)
}
