package activity

import (
	"time"

	"gorm.io/datatypes"
)

type Activity struct {
	ID          int64             `gorm:"primaryKey"`
	LogName     string            `gorm:"column:log_name;index"`
	Description string            `gorm:"column:description;not null"`
	SubjectType string            `gorm:"column:subject_type;not null;index:idx_activity_subject,priority:1"`
	SubjectID   int64             `gorm:"column:subject_id;not null;index:idx_activity_subject,priority:2"`
	CauserType  *string           `gorm:"column:causer_type"`
	CauserID    *int64            `gorm:"column:causer_id;index"`
	Properties  datatypes.JSONMap `gorm:"column:properties"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Activity) TableName() string {
	return "activity_log"
}
