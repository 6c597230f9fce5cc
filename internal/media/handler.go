package media

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/frahmantamala/clinic-management/internal"
	"github.com/frahmantamala/clinic-management/internal/activity"
	"github.com/frahmantamala/clinic-management/internal/audit"
	"github.com/frahmantamala/clinic-management/internal/auth"
	"github.com/frahmantamala/clinic-management/internal/transport"
)

// multipart framing allowance on top of the file size limit
const formOverhead = 64 * 1024

type ServiceAPI interface {
	Upload(ctx context.Context, actor *audit.Actor, kind activity.Kind, ownerID int64, fileName string, data []byte) (*Media, error)
	Remove(ctx context.Context, actor *audit.Actor, kind activity.Kind, ownerID int64) error
	MaxSize() int64
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

// Upload handles POST /{entity}/{id}/avatar.
func (h *Handler) Upload(entity string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, id, ok := h.owner(w, r, entity)
		if !ok {
			return
		}

		name, data, err := h.readAvatar(w, r)
		if err != nil {
			h.HandleServiceError(w, err)
			return
		}

		m, err := h.Service.Upload(r.Context(), auth.ActorFromContext(r.Context()), kind, id, name, data)
		if err != nil {
			h.HandleServiceError(w, err)
			return
		}

		h.WriteFlash(w, http.StatusOK, transport.Flash{
			Message: "Avatar uploaded successfully.",
			Type:    transport.FlashSuccess,
			Data:    m,
		})
	}
}

// Remove handles DELETE /{entity}/{id}/avatar.
func (h *Handler) Remove(entity string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, id, ok := h.owner(w, r, entity)
		if !ok {
			return
		}

		if err := h.Service.Remove(r.Context(), auth.ActorFromContext(r.Context()), kind, id); err != nil {
			h.HandleServiceError(w, err)
			return
		}

		h.WriteFlash(w, http.StatusOK, transport.Flash{
			Message: "Avatar removed successfully.",
			Type:    transport.FlashSuccess,
		})
	}
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request, entity string) (activity.Kind, int64, bool) {
	kind, ok := KindForEntity(entity)
	if !ok {
		h.HandleServiceError(w, internal.ErrEntityNotFound)
		return "", 0, false
	}
	id, err := h.ParseID(r, "id")
	if err != nil {
		h.HandleServiceError(w, internal.ErrEntityNotFound)
		return "", 0, false
	}
	return kind, id, true
}

func (h *Handler) readAvatar(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	limit := h.Service.MaxSize()
	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)

	if err := r.ParseMultipartForm(limit + formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, internal.NewValidationFieldError(FormField, "The avatar field must not be greater than "+kilobytes(limit)+" kilobytes.", internal.ErrCodeFileTooLarge)
		}
		h.Logger.Warn("Upload: invalid multipart form", "error", err)
		return "", nil, internal.NewValidationFieldError(FormField, "The avatar field is required.", internal.ErrCodeRequired)
	}

	file, header, err := r.FormFile(FormField)
	if err != nil {
		return "", nil, internal.NewValidationFieldError(FormField, "The avatar field is required.", internal.ErrCodeRequired)
	}
	defer file.Close()

	// one byte past the limit is enough for the service to reject it
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		h.Logger.Warn("Upload: failed to read avatar", "error", err)
		return "", nil, internal.NewValidationFieldError(FormField, "The avatar failed to upload.", internal.ErrCodeInvalidFileType)
	}
	return header.Filename, data, nil
}
