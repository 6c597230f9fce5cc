package appointment

import (
	"time"

	"github.com/frahmantamala/clinic-management/internal/audit"
	patientDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/patient"
	userDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/user"
	"gorm.io/gorm"
)

// Appointment times are stored as zero-padded "HH:MM" text so that string
// comparison orders them chronologically on every dialect.
type Appointment struct {
	ID              int64     `gorm:"primaryKey"`
	PatientID       int64     `gorm:"column:patient_id;not null;index"`
	Title           string    `gorm:"column:title;not null"`
	Type            *string   `gorm:"column:type"`
	Description     *string   `gorm:"column:description"`
	AppointmentDate time.Time `gorm:"column:appointment_date;type:date;not null;index:idx_appointments_window,priority:1"`
	StartTime       string    `gorm:"column:start_time;type:varchar(5);not null;index:idx_appointments_window,priority:2"`
	EndTime         string    `gorm:"column:end_time;type:varchar(5);not null;index:idx_appointments_window,priority:3"`
	Status          string    `gorm:"column:status;not null;index"`
	audit.Stamps
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`

	Patient     *patientDatamodel.Patient `gorm:"foreignKey:PatientID"`
	Assignments []AppointmentUser         `gorm:"foreignKey:AppointmentID"`
}

func (Appointment) TableName() string {
	return "appointments"
}

// AppointmentUser is a staff assignment. Rows are removed physically when an
// appointment's staff list is synced.
type AppointmentUser struct {
	ID            int64 `gorm:"primaryKey"`
	AppointmentID int64 `gorm:"column:appointment_id;not null;uniqueIndex:idx_appointment_user_unique,priority:1"`
	UserID        int64 `gorm:"column:user_id;not null;uniqueIndex:idx_appointment_user_unique,priority:2;index"`
	IsProvider    bool  `gorm:"column:is_provider;not null;default:false"`
	audit.Stamps
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at"`

	User *userDatamodel.User `gorm:"foreignKey:UserID"`
}

func (AppointmentUser) TableName() string {
	return "appointment_user"
}
