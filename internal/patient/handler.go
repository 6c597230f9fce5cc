package patient

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
	List(ctx context.Context, params listing.Params) (listing.Page[PatientResponse], error)
	Search(ctx context.Context, q string) ([]SearchResult, error)
	Get(ctx context.Context, id int64) (*ShowResponse, error)
	LoadMoreAppointments(ctx context.Context, id int64, rawOffset string) (*LoadMoreResponse, error)
	Create(ctx context.Context, actor *audit.Actor, dto PatientDTO) (*Patient, error)
	Update(ctx context.Context, actor *audit.Actor, id int64, dto PatientDTO) (*Patient, error)
	Delete(ctx context.Context, actor *audit.Actor, id int64) error
	Restore(ctx context.Context, actor *audit.Actor, id int64) (*Patient, error)
	ForceDelete(ctx context.Context, actor *audit.Actor, id int64) error
	Activity(ctx context.Context, id int64) ([]activity.Group, error)
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

func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	page, err := h.Service.List(r.Context(), listing.ParseParams(r.URL.Query()))
	if err != nil {
		h.Logger.Error("ListPatients: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) SearchPatients(w http.ResponseWriter, r *http.Request) {
	results, err := h.Service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, results)
}

func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrPatientNotFound)
		return
	}

	show, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, show)
}

func (h *Handler) LoadMoreAppointments(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrPatientNotFound)
		return
	}

	more, err := h.Service.LoadMoreAppointments(r.Context(), id, r.URL.Query().Get("offset"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, more)
}

func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var dto PatientDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.Logger.Warn("CreatePatient: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.Service.Create(r.Context(), auth.ActorFromContext(r.Context()), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CreatePatient: patient created", "patient_id", p.ID)
	h.WriteFlash(w, http.StatusCreated, transport.Flash{
		Message:  "Patient created successfully.",
		Type:     transport.FlashSuccess,
		Redirect: fmt.Sprintf("/patients/%d", p.ID),
		Data:     p.ToResponse(),
	})
}

func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrPatientNotFound)
		return
	}

	var dto PatientDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.Logger.Warn("UpdatePatient: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.Service.Update(r.Context(), auth.ActorFromContext(r.Context()), id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteFlash(w, http.StatusOK, transport.Flash{
		Message:  "Patient updated successfully.",
		Type:     transport.FlashSuccess,
		Redirect: fmt.Sprintf("/patients/%d", p.ID),
		Data:     p.ToResponse(),
	})
}

func (h *Handler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrPatientNotFound)
		return
	}

	if err := h.Service.Delete(r.Context(), auth.ActorFromContext(r.Context()), id); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteFlash(w, http.StatusOK, transport.Flash{
		Message:  "Patient deleted successfully.",
		Type:     transport.FlashSuccess,
		Redirect: "/patients",
	})
}

func (h *Handler) RestorePatient(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrPatientNotFound)
		return
	}

	p, err := h.Service.Restore(r.Context(), auth.ActorFromContext(r.Context()), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteFlash(w, http.StatusOK, transport.Flash{
		Message:  "Patient restored successfully.",
		Type:     transport.FlashSuccess,
		Redirect: fmt.Sprintf("/patients/%d", p.ID),
	})
}

func (h *Handler) ForceDeletePatient(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrPatientNotFound)
		return
	}

	if err := h.Service.ForceDelete(r.Context(), auth.ActorFromContext(r.Context()), id); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteFlash(w, http.StatusOK, transport.Flash{
		Message:  "Patient permanently deleted.",
		Type:     transport.FlashSuccess,
		Redirect: "/patients",
	})
}

func (h *Handler) PatientActivity(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrPatientNotFound)
		return
	}

	groups, err := h.Service.Activity(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"activities": groups})
}
