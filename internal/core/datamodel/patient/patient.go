package patient

import (
	"time"

	"github.com/frahmantamala/clinic-management/internal/audit"
	"gorm.io/gorm"
)

type Patient struct {
	ID            int64     `gorm:"primaryKey"`
	FirstName     string    `gorm:"column:first_name;not null"`
	MiddleName    *string   `gorm:"column:middle_name"`
	LastName      string    `gorm:"column:last_name;not null"`
	Email         string    `gorm:"column:email;uniqueIndex;not null"`
	DateOfBirth   time.Time `gorm:"column:date_of_birth;type:date;not null"`
	Password      string    `gorm:"column:password;not null"`
	RememberToken *string   `gorm:"column:remember_token"`
	audit.Stamps
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (Patient) TableName() string {
	return "patients"
}
