package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/frahmantamala/clinic-management/internal"
	"github.com/frahmantamala/clinic-management/internal/activity"
	activityPostgres "github.com/frahmantamala/clinic-management/internal/activity/postgres"
	userDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/user"
	"github.com/frahmantamala/clinic-management/internal/listing"
	"github.com/frahmantamala/clinic-management/internal/user"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.RepositoryAPI {
	return &UserRepository{db: db}
}

func (r *UserRepository) WithTx(ctx context.Context, fn func(repo user.RepositoryAPI) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&UserRepository{db: tx})
	})
}

func (r *UserRepository) Activity() activity.Writer {
	return activityPostgres.NewActivityRepository(r.db)
}

func (r *UserRepository) List(ctx context.Context, params listing.Params) ([]userDatamodel.User, int64, error) {
	base := r.db.WithContext(ctx).Model(&userDatamodel.User{}).Scopes(listing.Search(user.Listing, params.Search))

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	var rows []userDatamodel.User
	err := base.Session(&gorm.Session{}).
		Scopes(listing.Sort(user.Listing, params), listing.Paginate(params)).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return rows, total, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64, withTrashed bool) (*userDatamodel.User, error) {
	db := r.db.WithContext(ctx)
	if withTrashed {
		db = db.Unscoped()
	}
	var u userDatamodel.User
	if err := db.Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

// EmailTaken checks trashed rows as well since the unique index covers them.
func (r *UserRepository) EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Unscoped().Model(&userDatamodel.User{}).
		Where("LOWER(email) = ?", strings.ToLower(email))
	if exceptID > 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *UserRepository) Create(ctx context.Context, u *userDatamodel.User) error {
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) Save(ctx context.Context, u *userDatamodel.User) error {
	if err := r.db.WithContext(ctx).Save(u).Error; err != nil {
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}
	return nil
}

func (r *UserRepository) SoftDelete(ctx context.Context, u *userDatamodel.User) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(u).Update("deleted_by_id", u.DeletedByID).Error; err != nil {
		return fmt.Errorf("stamp user %d: %w", u.ID, err)
	}
	if err := db.Delete(u).Error; err != nil {
		return fmt.Errorf("delete user %d: %w", u.ID, err)
	}
	return nil
}

func (r *UserRepository) Restore(ctx context.Context, u *userDatamodel.User) error {
	err := r.db.WithContext(ctx).Unscoped().Model(u).Updates(map[string]interface{}{
		"deleted_at":    nil,
		"deleted_by_id": nil,
		"updated_by_id": u.UpdatedByID,
	}).Error
	if err != nil {
		return fmt.Errorf("restore user %d: %w", u.ID, err)
	}
	u.DeletedAt = gorm.DeletedAt{}
	return nil
}

func (r *UserRepository) ForceDelete(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Unscoped().Delete(&userDatamodel.User{}, id).Error; err != nil {
		return fmt.Errorf("force delete user %d: %w", id, err)
	}
	return nil
}
