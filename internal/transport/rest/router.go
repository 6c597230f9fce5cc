package rest

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/frahmantamala/clinic-management/internal/appointment"
	"github.com/frahmantamala/clinic-management/internal/auth"
	"github.com/frahmantamala/clinic-management/internal/dashboard"
	"github.com/frahmantamala/clinic-management/internal/media"
	"github.com/frahmantamala/clinic-management/internal/patient"
	"github.com/frahmantamala/clinic-management/internal/transport/middleware"
	"github.com/frahmantamala/clinic-management/internal/transport/swagger"
	"github.com/frahmantamala/clinic-management/internal/user"
	"github.com/go-chi/chi"
	"github.com/spf13/afero"
)

// Handlers groups everything the router mounts. Nil handlers leave their routes out.
type Handlers struct {
	Health       *HealthHandler
	Auth         *auth.Handler
	RBAC         *auth.RBACAuthorization
	LoginLimiter *middleware.IPRateLimiter
	User         *user.Handler
	Patient      *patient.Handler
	Appointment  *appointment.Handler
	Media        *media.Handler
	Dashboard    *dashboard.Handler
	OpenAPI      *swagger.Spec
}

type RouterConfig struct {
	AllowedOrigins []string
	// MediaPath is the URL prefix avatar files are served under, e.g. "/media".
	MediaPath string
	MediaFS   afero.Fs
}

func RegisterAllRoutes(router *chi.Mux, cfg RouterConfig, h Handlers, logger *slog.Logger) {
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	if h.OpenAPI != nil {
		router.Method(http.MethodGet, swagger.SpecURL, h.OpenAPI)
		router.Handle("/swagger/*", swagger.Handler())
	}

	if cfg.MediaFS != nil && cfg.MediaPath != "" {
		prefix := "/" + strings.Trim(cfg.MediaPath, "/")
		files := http.StripPrefix(prefix, http.FileServer(afero.NewHttpFs(cfg.MediaFS)))
		router.Method(http.MethodGet, prefix+"/*", files)
	}

	router.Route("/api/v1", func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.Health)
			r.Get("/ping", h.Health.Ping)
		}

		if h.Auth == nil {
			return
		}

		r.Route("/auth", func(ar chi.Router) {
			ar.Group(func(lr chi.Router) {
				if h.LoginLimiter != nil {
					lr.Use(h.LoginLimiter.Middleware)
				}
				lr.Post("/login", h.Auth.Login)
			})
			ar.Post("/refresh", h.Auth.RefreshToken)
			ar.Post("/logout", h.Auth.Logout)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			pr.Get("/me", h.Auth.Me)
			if h.Dashboard != nil {
				pr.Get("/dashboard", h.Dashboard.Dashboard)
			}

			if h.User != nil {
				pr.Route("/users", func(ur chi.Router) {
					if h.Media != nil {
						ur.With(h.RBAC.RequirePermissionOrSelf(auth.PermManageUsers, "id")).
							Post("/{id}/avatar", h.Media.Upload("users"))
						ur.With(h.RBAC.RequirePermissionOrSelf(auth.PermManageUsers, "id")).
							Delete("/{id}/avatar", h.Media.Remove("users"))
					}

					ur.Group(func(mr chi.Router) {
						mr.Use(h.RBAC.Middleware(auth.PermManageUsers))
						mr.Get("/", h.User.ListUsers)
						mr.Post("/", h.User.CreateUser)
						mr.Get("/options", h.User.UserOptions)
						mr.Get("/{id}", h.User.GetUser)
						mr.Put("/{id}", h.User.UpdateUser)
						mr.Delete("/{id}", h.User.DeleteUser)
						mr.Post("/{id}/restore", h.User.RestoreUser)
						mr.Delete("/{id}/force", h.User.ForceDeleteUser)
						mr.Get("/{id}/activity", h.User.UserActivity)
					})
				})
			}

			if h.Patient != nil {
				pr.Route("/patients", func(mr chi.Router) {
					mr.Use(h.RBAC.Middleware(auth.PermManagePatients))
					mr.Get("/", h.Patient.ListPatients)
					mr.Post("/", h.Patient.CreatePatient)
					mr.Get("/search", h.Patient.SearchPatients)
					mr.Get("/{id}", h.Patient.GetPatient)
					mr.Put("/{id}", h.Patient.UpdatePatient)
					mr.Delete("/{id}", h.Patient.DeletePatient)
					mr.Post("/{id}/restore", h.Patient.RestorePatient)
					mr.Delete("/{id}/force", h.Patient.ForceDeletePatient)
					mr.Get("/{id}/activity", h.Patient.PatientActivity)
					mr.Get("/{id}/appointments/load-more", h.Patient.LoadMoreAppointments)
					if h.Media != nil {
						mr.Post("/{id}/avatar", h.Media.Upload("patients"))
						mr.Delete("/{id}/avatar", h.Media.Remove("patients"))
					}
				})
			}

			if h.Appointment != nil {
				pr.Route("/appointments", func(mr chi.Router) {
					mr.Use(h.RBAC.Middleware(auth.PermManageAppointments))
					mr.Get("/", h.Appointment.ListAppointments)
					mr.Post("/", h.Appointment.CreateAppointment)
					mr.Get("/calendar", h.Appointment.Calendar)
					mr.Get("/options", h.Appointment.AppointmentOptions)
					mr.Get("/{id}", h.Appointment.GetAppointment)
					mr.Put("/{id}", h.Appointment.UpdateAppointment)
					mr.Delete("/{id}", h.Appointment.DeleteAppointment)
					mr.Post("/{id}/restore", h.Appointment.RestoreAppointment)
					mr.Delete("/{id}/force", h.Appointment.ForceDeleteAppointment)
					mr.Get("/{id}/activity", h.Appointment.AppointmentActivity)
				})
			}
		})
	})
}
