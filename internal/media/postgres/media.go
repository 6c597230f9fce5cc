package postgres

import (
	"context"
	"fmt"

	"github.com/frahmantamala/clinic-management/internal/activity"
	activityPostgres "github.com/frahmantamala/clinic-management/internal/activity/postgres"
	mediaDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/media"
	"github.com/frahmantamala/clinic-management/internal/media"
	"gorm.io/gorm"
)

type MediaRepository struct {
	db *gorm.DB
}

func NewMediaRepository(db *gorm.DB) media.RepositoryAPI {
	return &MediaRepository{db: db}
}

func (r *MediaRepository) WithTx(ctx context.Context, fn func(repo media.RepositoryAPI) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&MediaRepository{db: tx})
	})
}

func (r *MediaRepository) Activity() activity.Writer {
	return activityPostgres.NewActivityRepository(r.db)
}

func (r *MediaRepository) Collection(ctx context.Context, kind activity.Kind, ownerID int64, collection string) ([]mediaDatamodel.Media, error) {
	var rows []mediaDatamodel.Media
	err := r.db.WithContext(ctx).
		Where("model_type = ? AND model_id = ? AND collection_name = ?", string(kind), ownerID, collection).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load %s media: %w", kind, err)
	}
	return rows, nil
}

func (r *MediaRepository) Latest(ctx context.Context, kind activity.Kind, ownerIDs []int64, collection string) ([]mediaDatamodel.Media, error) {
	var rows []mediaDatamodel.Media
	err := r.db.WithContext(ctx).
		Where("model_type = ? AND model_id IN ? AND collection_name = ?", string(kind), ownerIDs, collection).
		Order("model_id, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load %s avatars: %w", kind, err)
	}

	latest := make([]mediaDatamodel.Media, 0, len(rows))
	seen := make(map[int64]bool, len(rows))
	for _, m := range rows {
		if seen[m.ModelID] {
			continue
		}
		seen[m.ModelID] = true
		latest = append(latest, m)
	}
	return latest, nil
}

func (r *MediaRepository) Create(ctx context.Context, m *mediaDatamodel.Media) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("create media: %w", err)
	}
	return nil
}

func (r *MediaRepository) SoftDelete(ctx context.Context, m *mediaDatamodel.Media) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(m).Update("deleted_by_id", m.DeletedByID).Error; err != nil {
		return fmt.Errorf("stamp media %d: %w", m.ID, err)
	}
	if err := db.Delete(m).Error; err != nil {
		return fmt.Errorf("delete media %d: %w", m.ID, err)
	}
	return nil
}

func (r *MediaRepository) ForceDeleteOwner(ctx context.Context, kind activity.Kind, ownerID int64) ([]mediaDatamodel.Media, error) {
	var rows []mediaDatamodel.Media
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := tx.Unscoped().Where("model_type = ? AND model_id = ?", string(kind), ownerID)
		if err := scoped.Session(&gorm.Session{}).Find(&rows).Error; err != nil {
			return err
		}
		return scoped.Session(&gorm.Session{}).Delete(&mediaDatamodel.Media{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("purge %s %d media: %w", kind, ownerID, err)
	}
	return rows, nil
}
