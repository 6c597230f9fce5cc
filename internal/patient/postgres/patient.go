package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/frahmantamala/clinic-management/internal"
	"github.com/frahmantamala/clinic-management/internal/activity"
	activityPostgres "github.com/frahmantamala/clinic-management/internal/activity/postgres"
	"github.com/frahmantamala/clinic-management/internal/core/common/validation"
	appointmentDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/appointment"
	patientDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/patient"
	"github.com/frahmantamala/clinic-management/internal/listing"
	"github.com/frahmantamala/clinic-management/internal/patient"
	"gorm.io/gorm"
)

type PatientRepository struct {
	db *gorm.DB
}

func NewPatientRepository(db *gorm.DB) patient.RepositoryAPI {
	return &PatientRepository{db: db}
}

func (r *PatientRepository) WithTx(ctx context.Context, fn func(repo patient.RepositoryAPI) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PatientRepository{db: tx})
	})
}

func (r *PatientRepository) Activity() activity.Writer {
	return activityPostgres.NewActivityRepository(r.db)
}

func (r *PatientRepository) List(ctx context.Context, params listing.Params) ([]patientDatamodel.Patient, int64, error) {
	base := r.db.WithContext(ctx).Model(&patientDatamodel.Patient{}).Scopes(listing.Search(patient.Listing, params.Search))

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	var rows []patientDatamodel.Patient
	err := base.Session(&gorm.Session{}).
		Scopes(listing.Sort(patient.Listing, params), listing.Paginate(params)).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	return rows, total, nil
}

// Search matches an id, any name part, "first last", "first middle last" or
// an exact date of birth.
func (r *PatientRepository) Search(ctx context.Context, q string, limit int) ([]patientDatamodel.Patient, error) {
	q = strings.TrimSpace(q)
	pattern := "%" + strings.ToLower(q) + "%"

	conds := []string{
		"LOWER(first_name) LIKE ?",
		"LOWER(middle_name) LIKE ?",
		"LOWER(last_name) LIKE ?",
		"LOWER(first_name || ' ' || last_name) LIKE ?",
		"LOWER(first_name || ' ' || COALESCE(middle_name, '') || ' ' || last_name) LIKE ?",
	}
	args := []interface{}{pattern, pattern, pattern, pattern, pattern}

	if id, err := strconv.ParseInt(q, 10, 64); err == nil {
		conds = append(conds, "id = ?")
		args = append(args, id)
	}
	if dob, err := validation.ParseDate(q); err == nil {
		conds = append(conds, "date_of_birth = ?")
		args = append(args, dob)
	}

	var rows []patientDatamodel.Patient
	err := r.db.WithContext(ctx).
		Where("("+strings.Join(conds, " OR ")+")", args...).
		Order("last_name ASC").
		Order("first_name ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	return rows, nil
}

func (r *PatientRepository) GetByID(ctx context.Context, id int64, withTrashed bool) (*patientDatamodel.Patient, error) {
	db := r.db.WithContext(ctx)
	if withTrashed {
		db = db.Unscoped()
	}
	var p patientDatamodel.Patient
	if err := db.Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPatientNotFound
		}
		return nil, fmt.Errorf("get patient %d: %w", id, err)
	}
	return &p, nil
}

func (r *PatientRepository) EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Unscoped().Model(&patientDatamodel.Patient{}).
		Where("LOWER(email) = ?", strings.ToLower(email))
	if exceptID > 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *PatientRepository) Create(ctx context.Context, p *patientDatamodel.Patient) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *PatientRepository) Save(ctx context.Context, p *patientDatamodel.Patient) error {
	if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("update patient %d: %w", p.ID, err)
	}
	return nil
}

func (r *PatientRepository) SoftDelete(ctx context.Context, p *patientDatamodel.Patient) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(p).Update("deleted_by_id", p.DeletedByID).Error; err != nil {
		return fmt.Errorf("stamp patient %d: %w", p.ID, err)
	}
	if err := db.Delete(p).Error; err != nil {
		return fmt.Errorf("delete patient %d: %w", p.ID, err)
	}
	return nil
}

func (r *PatientRepository) Restore(ctx context.Context, p *patientDatamodel.Patient) error {
	err := r.db.WithContext(ctx).Unscoped().Model(p).Updates(map[string]interface{}{
		"deleted_at":    nil,
		"deleted_by_id": nil,
		"updated_by_id": p.UpdatedByID,
	}).Error
	if err != nil {
		return fmt.Errorf("restore patient %d: %w", p.ID, err)
	}
	p.DeletedAt = gorm.DeletedAt{}
	return nil
}

// ForceDelete removes the patient together with its appointments and their
// staff assignments.
func (r *PatientRepository) ForceDelete(ctx context.Context, id int64) error {
	db := r.db.WithContext(ctx).Unscoped().Session(&gorm.Session{})

	appointmentIDs := db.Model(&appointmentDatamodel.Appointment{}).Select("id").Where("patient_id = ?", id)
	if err := db.Where("appointment_id IN (?)", appointmentIDs).Delete(&appointmentDatamodel.AppointmentUser{}).Error; err != nil {
		return fmt.Errorf("delete assignments of patient %d: %w", id, err)
	}
	if err := db.Where("patient_id = ?", id).Delete(&appointmentDatamodel.Appointment{}).Error; err != nil {
		return fmt.Errorf("delete appointments of patient %d: %w", id, err)
	}
	if err := db.Delete(&patientDatamodel.Patient{}, id).Error; err != nil {
		return fmt.Errorf("force delete patient %d: %w", id, err)
	}
	return nil
}

func (r *PatientRepository) Appointments(ctx context.Context, patientID int64, offset, limit int) ([]appointmentDatamodel.Appointment, error) {
	var rows []appointmentDatamodel.Appointment
	err := r.db.WithContext(ctx).
		Preload("Assignments.User").
		Where("patient_id = ?", patientID).
		Order("appointment_date DESC").
		Order("start_time DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list appointments of patient %d: %w", patientID, err)
	}
	return rows, nil
}

func (r *PatientRepository) CountAppointments(ctx context.Context, patientID int64) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&appointmentDatamodel.Appointment{}).
		Where("patient_id = ?", patientID).
		Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("count appointments of patient %d: %w", patientID, err)
	}
	return total, nil
}
