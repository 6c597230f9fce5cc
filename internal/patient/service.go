package patient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/clinic-management/internal"
	"github.com/frahmantamala/clinic-management/internal/activity"
	"github.com/frahmantamala/clinic-management/internal/appointment"
	"github.com/frahmantamala/clinic-management/internal/audit"
	"github.com/frahmantamala/clinic-management/internal/auth"
	"github.com/frahmantamala/clinic-management/internal/core/common/validation"
	appointmentDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/appointment"
	patientDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/patient"
	"github.com/frahmantamala/clinic-management/internal/listing"
)

type RepositoryAPI interface {
	WithTx(ctx context.Context, fn func(repo RepositoryAPI) error) error
	Activity() activity.Writer

	List(ctx context.Context, params listing.Params) ([]patientDatamodel.Patient, int64, error)
	Search(ctx context.Context, q string, limit int) ([]patientDatamodel.Patient, error)
	// GetByID returns internal.ErrPatientNotFound when missing; withTrashed includes soft-deleted rows.
	GetByID(ctx context.Context, id int64, withTrashed bool) (*patientDatamodel.Patient, error)
	EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error)
	Create(ctx context.Context, p *patientDatamodel.Patient) error
	Save(ctx context.Context, p *patientDatamodel.Patient) error
	SoftDelete(ctx context.Context, p *patientDatamodel.Patient) error
	Restore(ctx context.Context, p *patientDatamodel.Patient) error
	ForceDelete(ctx context.Context, id int64) error

	// Appointments returns live appointments newest first, staff preloaded.
	Appointments(ctx context.Context, patientID int64, offset, limit int) ([]appointmentDatamodel.Appointment, error)
	CountAppointments(ctx context.Context, patientID int64) (int64, error)
}

type AvatarStore interface {
	AvatarURLs(ctx context.Context, kind activity.Kind, ids []int64) (map[int64]string, error)
	PurgeOwner(ctx context.Context, kind activity.Kind, id int64) error
}

type StatsInvalidator interface {
	InvalidateStats(ctx context.Context)
}

type Aggregator interface {
	Aggregate(ctx context.Context, subject activity.Subject) ([]activity.Group, error)
}

type Service struct {
	repo       RepositoryAPI
	recorder   *activity.Recorder
	aggregator Aggregator
	avatars    AvatarStore
	stats      StatsInvalidator
	bcryptCost int
	now        func() time.Time
	logger     *slog.Logger
}

type ServiceOption func(*Service)

func WithAvatars(a AvatarStore) ServiceOption {
	return func(s *Service) { s.avatars = a }
}

func WithStatsInvalidator(i StatsInvalidator) ServiceOption {
	return func(s *Service) { s.stats = i }
}

func WithBCryptCost(cost int) ServiceOption {
	return func(s *Service) { s.bcryptCost = cost }
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(repo RepositoryAPI, recorder *activity.Recorder, aggregator Aggregator, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		repo:       repo,
		recorder:   recorder,
		aggregator: aggregator,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) List(ctx context.Context, params listing.Params) (listing.Page[PatientResponse], error) {
	rows, total, err := s.repo.List(ctx, params)
	if err != nil {
		s.logger.Error("failed to list patients", "error", err)
		return listing.Page[PatientResponse]{}, err
	}

	patients := make([]*Patient, 0, len(rows))
	for i := range rows {
		patients = append(patients, FromDataModel(&rows[i]))
	}
	s.attachAvatars(ctx, patients...)

	page := listing.NewPage(Listing, params, patients, total)
	return listing.MapPage(page, (*Patient).ToResponse), nil
}

// Search backs the patient picker. An empty query yields an empty list.
func (s *Service) Search(ctx context.Context, q string) ([]SearchResult, error) {
	results := []SearchResult{}
	if q == "" {
		return results, nil
	}

	rows, err := s.repo.Search(ctx, q, searchLimit)
	if err != nil {
		s.logger.Error("failed to search patients", "error", err, "q", q)
		return nil, err
	}

	patients := make([]*Patient, 0, len(rows))
	for i := range rows {
		patients = append(patients, FromDataModel(&rows[i]))
	}
	s.attachAvatars(ctx, patients...)

	for _, p := range patients {
		results = append(results, SearchResult{
			ID:          p.ID,
			FullName:    p.FullName(),
			Email:       p.Email,
			DateOfBirth: p.DateOfBirth.Format(validation.DateLayout),
			AvatarURL:   p.AvatarURL,
		})
	}
	return results, nil
}

// Get returns the patient with the latest appointments and their total count.
func (s *Service) Get(ctx context.Context, id int64) (*ShowResponse, error) {
	row, err := s.repo.GetByID(ctx, id, false)
	if err != nil {
		return nil, err
	}
	p := FromDataModel(row)
	s.attachAvatars(ctx, p)

	appointments, err := s.repo.Appointments(ctx, id, 0, appointmentsChunk)
	if err != nil {
		s.logger.Error("failed to load patient appointments", "patient_id", id, "error", err)
		return nil, err
	}
	total, err := s.repo.CountAppointments(ctx, id)
	if err != nil {
		s.logger.Error("failed to count patient appointments", "patient_id", id, "error", err)
		return nil, err
	}

	return &ShowResponse{
		Patient:           p.ToResponse(),
		Appointments:      toAppointmentResponses(appointments),
		TotalAppointments: total,
	}, nil
}

func (s *Service) LoadMoreAppointments(ctx context.Context, id int64, rawOffset string) (*LoadMoreResponse, error) {
	offset, err := ParseOffset(rawOffset)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetByID(ctx, id, false); err != nil {
		return nil, err
	}

	appointments, err := s.repo.Appointments(ctx, id, offset, appointmentsChunk)
	if err != nil {
		s.logger.Error("failed to load more appointments", "patient_id", id, "offset", offset, "error", err)
		return nil, err
	}
	total, err := s.repo.CountAppointments(ctx, id)
	if err != nil {
		return nil, err
	}

	return &LoadMoreResponse{
		Appointments: toAppointmentResponses(appointments),
		HasMore:      int64(offset+len(appointments)) < total,
	}, nil
}

func toAppointmentResponses(rows []appointmentDatamodel.Appointment) []appointment.AppointmentResponse {
	out := make([]appointment.AppointmentResponse, 0, len(rows))
	for i := range rows {
		out = append(out, appointment.FromDataModel(&rows[i]).ToResponse())
	}
	return out
}

func (s *Service) Create(ctx context.Context, actor *audit.Actor, dto PatientDTO) (*Patient, error) {
	dto.normalize()
	if err := s.validate(ctx, s.repo, dto, 0); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(dto.Password, s.bcryptCost)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}
	dob, _ := validation.ParseDate(dto.DateOfBirth)

	row := &patientDatamodel.Patient{
		FirstName:   dto.FirstName,
		MiddleName:  dto.MiddleName,
		LastName:    dto.LastName,
		Email:       dto.Email,
		DateOfBirth: dob,
		Password:    hash,
	}
	audit.StampCreate(&row.Stamps, actor)

	err = s.repo.WithTx(ctx, func(repo RepositoryAPI) error {
		if err := repo.Create(ctx, row); err != nil {
			return err
		}
		return s.recorder.Record(ctx, repo.Activity(), actor, activity.Subject{Kind: activity.KindPatient, ID: row.ID}, activity.Created, nil)
	})
	if err != nil {
		s.logger.Error("failed to create patient", "error", err)
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("patient created", "patient_id", row.ID)
	return FromDataModel(row), nil
}

func (s *Service) Update(ctx context.Context, actor *audit.Actor, id int64, dto PatientDTO) (*Patient, error) {
	dto.normalize()

	var updated *patientDatamodel.Patient
	err := s.repo.WithTx(ctx, func(repo RepositoryAPI) error {
		row, err := repo.GetByID(ctx, id, false)
		if err != nil {
			return err
		}
		if err := s.validate(ctx, repo, dto, id); err != nil {
			return err
		}

		before := snapshot(row)
		dob, _ := validation.ParseDate(dto.DateOfBirth)
		row.FirstName = dto.FirstName
		row.MiddleName = dto.MiddleName
		row.LastName = dto.LastName
		row.Email = dto.Email
		row.DateOfBirth = dob
		if dto.Password != "" {
			hash, err := auth.HashPassword(dto.Password, s.bcryptCost)
			if err != nil {
				return internal.NewInternalError("failed to hash password", err)
			}
			row.Password = hash
		}
		audit.StampUpdate(&row.Stamps, actor)

		if err := repo.Save(ctx, row); err != nil {
			return err
		}
		updated = row

		changes := activity.Diff(LoggedAttributes, before, snapshot(row))
		return s.recorder.Record(ctx, repo.Activity(), actor, activity.Subject{Kind: activity.KindPatient, ID: id}, activity.Updated, changes)
	})
	if err != nil {
		s.logFailure("failed to update patient", err, id)
		return nil, err
	}

	s.invalidate(ctx)
	return FromDataModel(updated), nil
}

func (s *Service) Delete(ctx context.Context, actor *audit.Actor, id int64) error {
	err := s.repo.WithTx(ctx, func(repo RepositoryAPI) error {
		row, err := repo.GetByID(ctx, id, false)
		if err != nil {
			return err
		}
		audit.StampDelete(&row.Stamps, actor)
		if err := repo.SoftDelete(ctx, row); err != nil {
			return err
		}
		return s.recorder.Record(ctx, repo.Activity(), actor, activity.Subject{Kind: activity.KindPatient, ID: id}, activity.Deleted, nil)
	})
	if err != nil {
		s.logFailure("failed to delete patient", err, id)
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) Restore(ctx context.Context, actor *audit.Actor, id int64) (*Patient, error) {
	var restored *patientDatamodel.Patient
	err := s.repo.WithTx(ctx, func(repo RepositoryAPI) error {
		row, err := repo.GetByID(ctx, id, true)
		if err != nil {
			return err
		}
		restored = row
		if !row.DeletedAt.Valid {
			return nil
		}
		audit.StampRestore(&row.Stamps, actor)
		if err := repo.Restore(ctx, row); err != nil {
			return err
		}
		return s.recorder.Record(ctx, repo.Activity(), actor, activity.Subject{Kind: activity.KindPatient, ID: id}, activity.Restored, nil)
	})
	if err != nil {
		s.logFailure("failed to restore patient", err, id)
		return nil, err
	}
	s.invalidate(ctx)
	return FromDataModel(restored), nil
}

func (s *Service) ForceDelete(ctx context.Context, actor *audit.Actor, id int64) error {
	err := s.repo.WithTx(ctx, func(repo RepositoryAPI) error {
		if _, err := repo.GetByID(ctx, id, true); err != nil {
			return err
		}
		if err := repo.ForceDelete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, repo.Activity(), actor, activity.Subject{Kind: activity.KindPatient, ID: id}, activity.PermanentlyDeleted, nil)
	})
	if err != nil {
		s.logFailure("failed to force delete patient", err, id)
		return err
	}

	if s.avatars != nil {
		if err := s.avatars.PurgeOwner(ctx, activity.KindPatient, id); err != nil {
			s.logger.Warn("failed to purge patient media", "patient_id", id, "error", err)
		}
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) Activity(ctx context.Context, id int64) ([]activity.Group, error) {
	if _, err := s.repo.GetByID(ctx, id, false); err != nil {
		return nil, err
	}
	groups, err := s.aggregator.Aggregate(ctx, activity.Subject{Kind: activity.KindPatient, ID: id})
	if err != nil {
		s.logger.Error("failed to aggregate patient activity", "patient_id", id, "error", err)
		return nil, err
	}
	return groups, nil
}

// Exists reports whether a live patient with id exists.
func (s *Service) Exists(ctx context.Context, id int64) error {
	_, err := s.repo.GetByID(ctx, id, false)
	return err
}

func (s *Service) validate(ctx context.Context, repo RepositoryAPI, dto PatientDTO, exceptID int64) error {
	if err := dto.Validate(exceptID == 0, s.now()); err != nil {
		if appErr, ok := internal.IsAppError(err); ok && appErr.Type == internal.ErrorTypeValidation {
			return err
		}
		return internal.NewInternalError("failed to validate patient", err)
	}

	taken, err := repo.EmailTaken(ctx, dto.Email, exceptID)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if taken {
		return internal.NewValidationFieldError("email", "The email has already been taken.", internal.ErrCodeDuplicateEmail)
	}
	return nil
}

func (s *Service) attachAvatars(ctx context.Context, patients ...*Patient) {
	if s.avatars == nil || len(patients) == 0 {
		return
	}
	ids := make([]int64, 0, len(patients))
	for _, p := range patients {
		ids = append(ids, p.ID)
	}
	urls, err := s.avatars.AvatarURLs(ctx, activity.KindPatient, ids)
	if err != nil {
		s.logger.Warn("failed to resolve avatars", "error", err)
		return
	}
	for _, p := range patients {
		if u, ok := urls[p.ID]; ok {
			p.AvatarURL = &u
		}
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.stats != nil {
		s.stats.InvalidateStats(ctx)
	}
}

func (s *Service) logFailure(msg string, err error, id int64) {
	if errors.Is(err, internal.ErrPatientNotFound) {
		s.logger.Warn(msg, "patient_id", id, "error", err)
		return
	}
	if appErr, ok := internal.IsAppError(err); ok && appErr.Type == internal.ErrorTypeValidation {
		return
	}
	s.logger.Error(msg, "patient_id", id, "error", err)
}
