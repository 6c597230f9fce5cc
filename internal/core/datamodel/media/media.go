package media

import (
	"time"

	"github.com/frahmantamala/clinic-management/internal/audit"
	"gorm.io/gorm"
)

type Media struct {
	ID             int64  `gorm:"primaryKey"`
	ModelType      string `gorm:"column:model_type;not null;index:idx_media_model,priority:1"`
	ModelID        int64  `gorm:"column:model_id;not null;index:idx_media_model,priority:2"`
	CollectionName string `gorm:"column:collection_name;not null"`
	FileName       string `gorm:"column:file_name;not null"`
	DiskName       string `gorm:"column:disk_name;not null"`
	MimeType       string `gorm:"column:mime_type"`
	Size           int64  `gorm:"column:size"`
	audit.Stamps
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (Media) TableName() string {
	return "media"
}
