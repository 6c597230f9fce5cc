package postgres

import (
	"context"
	"fmt"
	"strings"

	patientDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/patient"
	userDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/user"
	"github.com/frahmantamala/clinic-management/internal/patient"
	"gorm.io/gorm"
)

type ImportRepository struct {
	db *gorm.DB
}

func NewImportRepository(db *gorm.DB) patient.ImportStore {
	return &ImportRepository{db: db}
}

func (r *ImportRepository) Creators(ctx context.Context) ([]patient.Creator, error) {
	var rows []userDatamodel.User
	if err := r.db.WithContext(ctx).Select("id", "created_at").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	creators := make([]patient.Creator, 0, len(rows))
	for _, u := range rows {
		creators = append(creators, patient.Creator{ID: u.ID, CreatedAt: u.CreatedAt})
	}
	return creators, nil
}

func (r *ImportRepository) EmailInUse(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(email)

	var patients int64
	err := r.db.WithContext(ctx).Unscoped().Model(&patientDatamodel.Patient{}).
		Where("LOWER(email) = ?", email).Count(&patients).Error
	if err != nil {
		return false, err
	}
	if patients > 0 {
		return true, nil
	}

	var users int64
	err = r.db.WithContext(ctx).Model(&userDatamodel.User{}).
		Where("LOWER(email) = ?", email).Count(&users).Error
	if err != nil {
		return false, err
	}
	return users > 0, nil
}

func (r *ImportRepository) Insert(ctx context.Context, p *patientDatamodel.Patient) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}
