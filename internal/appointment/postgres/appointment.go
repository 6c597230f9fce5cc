package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frahmantamala/clinic-management/internal"
	"github.com/frahmantamala/clinic-management/internal/activity"
	activityPostgres "github.com/frahmantamala/clinic-management/internal/activity/postgres"
	"github.com/frahmantamala/clinic-management/internal/appointment"
	"github.com/frahmantamala/clinic-management/internal/audit"
	appointmentDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/appointment"
	patientDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/patient"
	userDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/user"
	"github.com/frahmantamala/clinic-management/internal/core/person"
	"github.com/frahmantamala/clinic-management/internal/listing"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AppointmentRepository struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) appointment.RepositoryAPI {
	return &AppointmentRepository{db: db}
}

func (r *AppointmentRepository) WithTx(ctx context.Context, fn func(repo appointment.RepositoryAPI) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&AppointmentRepository{db: tx})
	})
}

func (r *AppointmentRepository) Activity() activity.Writer {
	return activityPostgres.NewActivityRepository(r.db)
}

// LockParticipants takes FOR UPDATE locks in id order so that concurrent
// bookings sharing a patient or staff member serialize. Dialects without row
// locks are left alone.
func (r *AppointmentRepository) LockParticipants(ctx context.Context, patientID int64, userIDs []int64) error {
	if r.db.Dialector.Name() != "postgres" {
		return nil
	}
	locking := clause.Locking{Strength: "UPDATE"}

	var ids []int64
	err := r.db.WithContext(ctx).Clauses(locking).
		Model(&patientDatamodel.Patient{}).
		Where("id = ?", patientID).
		Pluck("id", &ids).Error
	if err != nil {
		return fmt.Errorf("lock patient %d: %w", patientID, err)
	}
	if len(userIDs) == 0 {
		return nil
	}
	err = r.db.WithContext(ctx).Clauses(locking).
		Model(&userDatamodel.User{}).
		Where("id IN ?", userIDs).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return fmt.Errorf("lock users: %w", err)
	}
	return nil
}

func withRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Patient", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("Assignments", func(db *gorm.DB) *gorm.DB { return db.Order("appointment_user.id") }).
		Preload("Assignments.User")
}

func (r *AppointmentRepository) List(ctx context.Context, params listing.Params) ([]appointmentDatamodel.Appointment, int64, error) {
	base := r.db.WithContext(ctx).Model(&appointmentDatamodel.Appointment{}).Scopes(listing.Search(appointment.Listing, params.Search))

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	var rows []appointmentDatamodel.Appointment
	err := base.Session(&gorm.Session{}).
		Scopes(listing.Sort(appointment.Listing, params), listing.Paginate(params), withRelations).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	return rows, total, nil
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id int64, withTrashed bool) (*appointmentDatamodel.Appointment, error) {
	return r.find(r.db.WithContext(ctx), id, withTrashed)
}

func (r *AppointmentRepository) Detail(ctx context.Context, id int64, withTrashed bool) (*appointmentDatamodel.Appointment, error) {
	return r.find(r.db.WithContext(ctx).Scopes(withRelations), id, withTrashed)
}

func (r *AppointmentRepository) find(db *gorm.DB, id int64, withTrashed bool) (*appointmentDatamodel.Appointment, error) {
	if withTrashed {
		db = db.Unscoped()
	}
	var a appointmentDatamodel.Appointment
	if err := db.Where("appointments.id = ?", id).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("get appointment %d: %w", id, err)
	}
	return &a, nil
}

func (r *AppointmentRepository) PatientExists(ctx context.Context, id int64) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&patientDatamodel.Patient{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check patient %d: %w", id, err)
	}
	return count > 0, nil
}

func (r *AppointmentRepository) ExistingUserIDs(ctx context.Context, ids []int64) ([]int64, error) {
	found := []int64{}
	if len(ids) == 0 {
		return found, nil
	}
	if err := r.db.WithContext(ctx).Model(&userDatamodel.User{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, fmt.Errorf("check users: %w", err)
	}
	return found, nil
}

func (r *AppointmentRepository) StaffIDs(ctx context.Context, appointmentID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&appointmentDatamodel.AppointmentUser{}).
		Where("appointment_id = ?", appointmentID).
		Order("id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list staff of appointment %d: %w", appointmentID, err)
	}
	return ids, nil
}

// overlapping keeps live, non-cancelled appointments on w's day whose times
// intersect w with inclusive bounds.
func overlapping(w appointment.Window, exceptID int64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.
			Where("appointments.appointment_date = ?", w.Date).
			Where("appointments.status <> ?", string(appointment.StatusCancelled)).
			Where("((appointments.start_time BETWEEN ? AND ?) OR (appointments.end_time BETWEEN ? AND ?) OR (appointments.start_time <= ? AND appointments.end_time >= ?))",
				w.Start, w.End, w.Start, w.End, w.Start, w.End)
		if exceptID > 0 {
			db = db.Where("appointments.id <> ?", exceptID)
		}
		return db
	}
}

func (r *AppointmentRepository) PatientBooked(ctx context.Context, patientID int64, w appointment.Window, exceptID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&appointmentDatamodel.Appointment{}).
		Scopes(overlapping(w, exceptID)).
		Where("appointments.patient_id = ?", patientID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check patient %d overlap: %w", patientID, err)
	}
	return count > 0, nil
}

type bookedStaff struct {
	UserID    int64
	FirstName string
	LastName  string
}

func (r *AppointmentRepository) BookedStaff(ctx context.Context, userIDs []int64, w appointment.Window, exceptID int64) ([]string, error) {
	var rows []bookedStaff
	err := r.db.WithContext(ctx).Model(&appointmentDatamodel.Appointment{}).
		Select("appointment_user.user_id, users.first_name, users.last_name").
		Joins("JOIN appointment_user ON appointment_user.appointment_id = appointments.id AND appointment_user.deleted_at IS NULL").
		Joins("JOIN users ON users.id = appointment_user.user_id").
		Scopes(overlapping(w, exceptID)).
		Where("appointment_user.user_id IN ?", userIDs).
		Order("appointments.start_time").
		Order("appointments.id").
		Order("appointment_user.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("check staff overlap: %w", err)
	}

	seen := make(map[int64]struct{}, len(rows))
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.UserID]; ok {
			continue
		}
		seen[row.UserID] = struct{}{}
		names = append(names, person.FullName(row.FirstName, row.LastName))
	}
	return names, nil
}

func (r *AppointmentRepository) Create(ctx context.Context, a *appointmentDatamodel.Appointment) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(a).Error; err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *AppointmentRepository) Save(ctx context.Context, a *appointmentDatamodel.Appointment) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(a).Error; err != nil {
		return fmt.Errorf("update appointment %d: %w", a.ID, err)
	}
	return nil
}

func (r *AppointmentRepository) SyncStaff(ctx context.Context, appointmentID int64, userIDs []int64, providerID *int64, actor *audit.Actor) error {
	var existing []appointmentDatamodel.AppointmentUser
	if err := r.db.WithContext(ctx).Unscoped().Where("appointment_id = ?", appointmentID).Find(&existing).Error; err != nil {
		return fmt.Errorf("load staff of appointment %d: %w", appointmentID, err)
	}

	wanted := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = struct{}{}
	}

	current := make(map[int64]appointmentDatamodel.AppointmentUser, len(existing))
	var stale []int64
	for _, au := range existing {
		if _, ok := wanted[au.UserID]; !ok || au.DeletedAt.Valid {
			stale = append(stale, au.ID)
			continue
		}
		current[au.UserID] = au
	}
	if len(stale) > 0 {
		if err := r.db.WithContext(ctx).Unscoped().Where("id IN ?", stale).Delete(&appointmentDatamodel.AppointmentUser{}).Error; err != nil {
			return fmt.Errorf("detach staff from appointment %d: %w", appointmentID, err)
		}
	}

	for _, userID := range userIDs {
		isProvider := providerID != nil && *providerID == userID
		if au, ok := current[userID]; ok {
			if au.IsProvider == isProvider {
				continue
			}
			audit.StampUpdate(&au.Stamps, actor)
			err := r.db.WithContext(ctx).Model(&au).Updates(map[string]interface{}{
				"is_provider":   isProvider,
				"updated_by_id": au.UpdatedByID,
			}).Error
			if err != nil {
				return fmt.Errorf("update staff %d on appointment %d: %w", userID, appointmentID, err)
			}
			continue
		}

		au := appointmentDatamodel.AppointmentUser{AppointmentID: appointmentID, UserID: userID, IsProvider: isProvider}
		audit.StampCreate(&au.Stamps, actor)
		if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&au).Error; err != nil {
			return fmt.Errorf("attach staff %d to appointment %d: %w", userID, appointmentID, err)
		}
	}
	return nil
}

func (r *AppointmentRepository) SoftDelete(ctx context.Context, a *appointmentDatamodel.Appointment) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(a).Update("deleted_by_id", a.DeletedByID).Error; err != nil {
		return fmt.Errorf("stamp appointment %d: %w", a.ID, err)
	}
	if err := db.Delete(a).Error; err != nil {
		return fmt.Errorf("delete appointment %d: %w", a.ID, err)
	}
	return nil
}

func (r *AppointmentRepository) Restore(ctx context.Context, a *appointmentDatamodel.Appointment) error {
	err := r.db.WithContext(ctx).Unscoped().Model(a).Updates(map[string]interface{}{
		"deleted_at":    nil,
		"deleted_by_id": nil,
		"updated_by_id": a.UpdatedByID,
	}).Error
	if err != nil {
		return fmt.Errorf("restore appointment %d: %w", a.ID, err)
	}
	a.DeletedAt = gorm.DeletedAt{}
	return nil
}

func (r *AppointmentRepository) ForceDelete(ctx context.Context, id int64) error {
	db := r.db.WithContext(ctx).Unscoped().Session(&gorm.Session{})
	if err := db.Where("appointment_id = ?", id).Delete(&appointmentDatamodel.AppointmentUser{}).Error; err != nil {
		return fmt.Errorf("delete staff of appointment %d: %w", id, err)
	}
	if err := db.Delete(&appointmentDatamodel.Appointment{}, id).Error; err != nil {
		return fmt.Errorf("force delete appointment %d: %w", id, err)
	}
	return nil
}

func (r *AppointmentRepository) Calendar(ctx context.Context, start, end time.Time) ([]appointmentDatamodel.Appointment, error) {
	var rows []appointmentDatamodel.Appointment
	err := r.db.WithContext(ctx).
		Preload("Patient", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("appointment_date BETWEEN ? AND ?", start, end).
		Order("appointment_date").
		Order("start_time").
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load calendar: %w", err)
	}
	return rows, nil
}

func (r *AppointmentRepository) PatientOptions(ctx context.Context) ([]appointment.Option, error) {
	var rows []patientDatamodel.Patient
	err := r.db.WithContext(ctx).
		Select("id", "first_name", "last_name").
		Order("last_name").
		Order("first_name").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load patient options: %w", err)
	}
	out := make([]appointment.Option, 0, len(rows))
	for _, p := range rows {
		out = append(out, appointment.Option{Value: p.ID, Label: person.FullName(p.FirstName, p.LastName)})
	}
	return out, nil
}

func (r *AppointmentRepository) StaffOptions(ctx context.Context) ([]appointment.StaffOption, error) {
	var rows []userDatamodel.User
	err := r.db.WithContext(ctx).
		Select("id", "first_name", "last_name", "role").
		Order("first_name").
		Order("last_name").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load staff options: %w", err)
	}
	out := make([]appointment.StaffOption, 0, len(rows))
	for _, u := range rows {
		out = append(out, appointment.StaffOption{Value: u.ID, Label: person.FullName(u.FirstName, u.LastName), Role: u.Role})
	}
	return out, nil
}
