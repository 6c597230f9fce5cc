package user

import (
	"time"

	"github.com/frahmantamala/clinic-management/internal/audit"
	"gorm.io/gorm"
)

type User struct {
	ID            int64   `gorm:"primaryKey"`
	Role          string  `gorm:"column:role;not null"`
	FirstName     string  `gorm:"column:first_name;not null"`
	LastName      string  `gorm:"column:last_name;not null"`
	Email         string  `gorm:"column:email;uniqueIndex;not null"`
	Password      string  `gorm:"column:password;not null"`
	RememberToken *string `gorm:"column:remember_token"`
	audit.Stamps
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (User) TableName() string {
	return "users"
}
