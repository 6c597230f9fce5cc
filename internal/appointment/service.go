package appointment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/clinic-management/internal"
	"github.com/frahmantamala/clinic-management/internal/activity"
	"github.com/frahmantamala/clinic-management/internal/audit"
	"github.com/frahmantamala/clinic-management/internal/core/common/validation"
	appointmentDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/appointment"
	"github.com/frahmantamala/clinic-management/internal/listing"
)

type RepositoryAPI interface {
	BookingStore

	WithTx(ctx context.Context, fn func(repo RepositoryAPI) error) error
	Activity() activity.Writer
	// LockParticipants row-locks the patient and users for the rest of the
	// transaction where the dialect supports it.
	LockParticipants(ctx context.Context, patientID int64, userIDs []int64) error

	List(ctx context.Context, params listing.Params) ([]appointmentDatamodel.Appointment, int64, error)
	// GetByID loads the bare row; internal.ErrAppointmentNotFound when missing.
	GetByID(ctx context.Context, id int64, withTrashed bool) (*appointmentDatamodel.Appointment, error)
	// Detail loads the row with its patient and staff.
	Detail(ctx context.Context, id int64, withTrashed bool) (*appointmentDatamodel.Appointment, error)
	PatientExists(ctx context.Context, id int64) (bool, error)
	ExistingUserIDs(ctx context.Context, ids []int64) ([]int64, error)
	StaffIDs(ctx context.Context, appointmentID int64) ([]int64, error)

	Create(ctx context.Context, a *appointmentDatamodel.Appointment) error
	Save(ctx context.Context, a *appointmentDatamodel.Appointment) error
	// SyncStaff makes the assignments equal userIDs, removing dropped rows physically.
	SyncStaff(ctx context.Context, appointmentID int64, userIDs []int64, providerID *int64, actor *audit.Actor) error
	SoftDelete(ctx context.Context, a *appointmentDatamodel.Appointment) error
	Restore(ctx context.Context, a *appointmentDatamodel.Appointment) error
	ForceDelete(ctx context.Context, id int64) error

	Calendar(ctx context.Context, start, end time.Time) ([]appointmentDatamodel.Appointment, error)
	PatientOptions(ctx context.Context) ([]Option, error)
	StaffOptions(ctx context.Context) ([]StaffOption, error)
}

type Aggregator interface {
	Aggregate(ctx context.Context, subject activity.Subject) ([]activity.Group, error)
}

type Service struct {
	repo       RepositoryAPI
	recorder   *activity.Recorder
	aggregator Aggregator
	logger     *slog.Logger
}

func NewService(repo RepositoryAPI, recorder *activity.Recorder, aggregator Aggregator, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		recorder:   recorder,
		aggregator: aggregator,
		logger:     logger,
	}
}

func (s *Service) List(ctx context.Context, params listing.Params) (listing.Page[AppointmentResponse], error) {
	rows, total, err := s.repo.List(ctx, params)
	if err != nil {
		s.logger.Error("failed to list appointments", "error", err)
		return listing.Page[AppointmentResponse]{}, err
	}

	items := make([]AppointmentResponse, 0, len(rows))
	for i := range rows {
		items = append(items, FromDataModel(&rows[i]).ToResponse())
	}
	return listing.NewPage(Listing, params, items, total), nil
}

func (s *Service) Get(ctx context.Context, id int64) (*AppointmentResponse, error) {
	row, err := s.repo.Detail(ctx, id, false)
	if err != nil {
		return nil, err
	}
	resp := FromDataModel(row).ToResponse()
	return &resp, nil
}

// Create validates the payload, checks both double-booking rules and stores
// the appointment with its staff in one transaction.
func (s *Service) Create(ctx context.Context, actor *audit.Actor, dto AppointmentDTO) (*Appointment, error) {
	dto.normalize()
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	var created *appointmentDatamodel.Appointment
	err := s.repo.WithTx(ctx, func(repo RepositoryAPI) error {
		if err := s.checkBooking(ctx, repo, dto, 0); err != nil {
			return err
		}

		row := &appointmentDatamodel.Appointment{}
		apply(row, dto)
		audit.StampCreate(&row.Stamps, actor)
		if err := repo.Create(ctx, row); err != nil {
			return err
		}
		if err := repo.SyncStaff(ctx, row.ID, dto.UserIDs, dto.ProviderID, actor); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, repo.Activity(), actor, activity.Subject{Kind: activity.KindAppointment, ID: row.ID}, activity.Created, nil); err != nil {
			return err
		}

		var err error
		created, err = repo.Detail(ctx, row.ID, false)
		return err
	})
	if err != nil {
		s.logFailure("failed to create appointment", err, 0)
		return nil, err
	}

	s.logger.Info("appointment created", "appointment_id", created.ID, "patient_id", created.PatientID)
	return FromDataModel(created), nil
}

func (s *Service) Update(ctx context.Context, actor *audit.Actor, id int64, dto AppointmentDTO) (*Appointment, error) {
	dto.normalize()

	var updated *appointmentDatamodel.Appointment
	err := s.repo.WithTx(ctx, func(repo RepositoryAPI) error {
		row, err := repo.GetByID(ctx, id, false)
		if err != nil {
			return err
		}
		if err := dto.Validate(); err != nil {
			return err
		}
		if err := s.checkBooking(ctx, repo, dto, id); err != nil {
			return err
		}

		before := snapshot(row)
		apply(row, dto)
		audit.StampUpdate(&row.Stamps, actor)
		if err := repo.Save(ctx, row); err != nil {
			return err
		}
		if err := repo.SyncStaff(ctx, id, dto.UserIDs, dto.ProviderID, actor); err != nil {
			return err
		}

		changes := activity.Diff(LoggedAttributes, before, snapshot(row))
		if err := s.recorder.Record(ctx, repo.Activity(), actor, activity.Subject{Kind: activity.KindAppointment, ID: id}, activity.Updated, changes); err != nil {
			return err
		}

		updated, err = repo.Detail(ctx, id, false)
		return err
	})
	if err != nil {
		s.logFailure("failed to update appointment", err, id)
		return nil, err
	}
	return FromDataModel(updated), nil
}

func apply(row *appointmentDatamodel.Appointment, dto AppointmentDTO) {
	date, _ := validation.ParseDate(dto.AppointmentDate)
	row.PatientID = dto.PatientID
	row.Title = dto.Title
	row.Type = dto.Type
	row.Description = dto.Description
	row.AppointmentDate = date
	row.StartTime = dto.StartTime
	row.EndTime = dto.EndTime
	row.Status = dto.Status
}

// checkBooking locks the participants, verifies they exist and then runs the
// double-booking checks. exceptID is the appointment being edited, or 0.
func (s *Service) checkBooking(ctx context.Context, repo RepositoryAPI, dto AppointmentDTO, exceptID int64) error {
	if err := repo.LockParticipants(ctx, dto.PatientID, dto.UserIDs); err != nil {
		return err
	}

	bag := validation.NewBag()
	exists, err := repo.PatientExists(ctx, dto.PatientID)
	if err != nil {
		return err
	}
	if !exists {
		bag.Add("patient_id", msgPatientExists, internal.ErrCodeValidationFailed)
	}

	found, err := repo.ExistingUserIDs(ctx, dto.UserIDs)
	if err != nil {
		return err
	}
	if len(found) != len(dto.UserIDs) {
		bag.Add("user_ids", msgStaffMissing, internal.ErrCodeValidationFailed)
	}
	if !bag.Empty() {
		return bag.Err()
	}

	return NewBookingValidator(repo).Check(ctx, Booking{
		AppointmentID: exceptID,
		PatientID:     dto.PatientID,
		UserIDs:       dto.UserIDs,
		Window:        dto.Window(),
	})
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
		return s.recorder.Record(ctx, repo.Activity(), actor, activity.Subject{Kind: activity.KindAppointment, ID: id}, activity.Deleted, nil)
	})
	if err != nil {
		s.logFailure("failed to delete appointment", err, id)
	}
	return err
}

// Restore brings a soft-deleted appointment back. A restore that would
// double-book the patient or staff is rejected like a conflicting create.
func (s *Service) Restore(ctx context.Context, actor *audit.Actor, id int64) (*Appointment, error) {
	var restored *appointmentDatamodel.Appointment
	err := s.repo.WithTx(ctx, func(repo RepositoryAPI) error {
		row, err := repo.GetByID(ctx, id, true)
		if err != nil {
			return err
		}
		if row.DeletedAt.Valid {
			if row.Status != string(StatusCancelled) {
				staff, err := repo.StaffIDs(ctx, id)
				if err != nil {
					return err
				}
				if err := repo.LockParticipants(ctx, row.PatientID, staff); err != nil {
					return err
				}
				err = NewBookingValidator(repo).Check(ctx, Booking{
					AppointmentID: id,
					PatientID:     row.PatientID,
					UserIDs:       staff,
					Window:        Window{Date: row.AppointmentDate, Start: row.StartTime, End: row.EndTime},
				})
				if err != nil {
					return err
				}
			}

			audit.StampRestore(&row.Stamps, actor)
			if err := repo.Restore(ctx, row); err != nil {
				return err
			}
			if err := s.recorder.Record(ctx, repo.Activity(), actor, activity.Subject{Kind: activity.KindAppointment, ID: id}, activity.Restored, nil); err != nil {
				return err
			}
		}

		restored, err = repo.Detail(ctx, id, false)
		return err
	})
	if err != nil {
		s.logFailure("failed to restore appointment", err, id)
		return nil, err
	}
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
		return s.recorder.Record(ctx, repo.Activity(), actor, activity.Subject{Kind: activity.KindAppointment, ID: id}, activity.PermanentlyDeleted, nil)
	})
	if err != nil {
		s.logFailure("failed to force delete appointment", err, id)
	}
	return err
}

func (s *Service) Activity(ctx context.Context, id int64) ([]activity.Group, error) {
	if _, err := s.repo.GetByID(ctx, id, false); err != nil {
		return nil, err
	}
	groups, err := s.aggregator.Aggregate(ctx, activity.Subject{Kind: activity.KindAppointment, ID: id})
	if err != nil {
		s.logger.Error("failed to aggregate appointment activity", "appointment_id", id, "error", err)
		return nil, err
	}
	return groups, nil
}

// Calendar returns the events between start and end, both inclusive.
func (s *Service) Calendar(ctx context.Context, start, end string) ([]CalendarEvent, error) {
	r, err := ParseCalendarRange(start, end)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.Calendar(ctx, r.Start, r.End)
	if err != nil {
		s.logger.Error("failed to load calendar", "start", start, "end", end, "error", err)
		return nil, err
	}

	events := make([]CalendarEvent, 0, len(rows))
	for i := range rows {
		events = append(events, FromDataModel(&rows[i]).ToCalendarEvent())
	}
	return events, nil
}

func (s *Service) Options(ctx context.Context) (*OptionsResponse, error) {
	patients, err := s.repo.PatientOptions(ctx)
	if err != nil {
		s.logger.Error("failed to load patient options", "error", err)
		return nil, err
	}
	staff, err := s.repo.StaffOptions(ctx)
	if err != nil {
		s.logger.Error("failed to load staff options", "error", err)
		return nil, err
	}

	resp := &OptionsResponse{
		Statuses: make([]Option, 0, len(AllStatuses)),
		Types:    make([]Option, 0, len(AllTypes)),
		Patients: patients,
		Users:    staff,
	}
	for _, st := range AllStatuses {
		resp.Statuses = append(resp.Statuses, Option{Value: string(st), Label: string(st)})
	}
	for _, t := range AllTypes {
		resp.Types = append(resp.Types, Option{Value: string(t), Label: string(t)})
	}
	return resp, nil
}

func (s *Service) logFailure(msg string, err error, id int64) {
	if errors.Is(err, internal.ErrAppointmentNotFound) {
		s.logger.Warn(msg, "appointment_id", id, "error", err)
		return
	}
	if appErr, ok := internal.IsAppError(err); ok && appErr.Type == internal.ErrorTypeValidation {
		s.logger.Info(msg, "appointment_id", id, "reason", appErr.GetDetailedMessage())
		return
	}
	s.logger.Error(msg, "appointment_id", id, "error", err)
}
