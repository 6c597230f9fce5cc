package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/clinic-management/internal"
	"github.com/frahmantamala/clinic-management/internal/activity"
	"github.com/frahmantamala/clinic-management/internal/audit"
	"github.com/frahmantamala/clinic-management/internal/auth"
	userDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/user"
	"github.com/frahmantamala/clinic-management/internal/listing"
)

type RepositoryAPI interface {
	// WithTx runs fn against a repository bound to one transaction.
	WithTx(ctx context.Context, fn func(repo RepositoryAPI) error) error
	Activity() activity.Writer

	List(ctx context.Context, params listing.Params) ([]userDatamodel.User, int64, error)
	// GetByID returns internal.ErrUserNotFound when missing; withTrashed includes soft-deleted rows.
	GetByID(ctx context.Context, id int64, withTrashed bool) (*userDatamodel.User, error)
	EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error)
	Create(ctx context.Context, u *userDatamodel.User) error
	Save(ctx context.Context, u *userDatamodel.User) error
	SoftDelete(ctx context.Context, u *userDatamodel.User) error
	Restore(ctx context.Context, u *userDatamodel.User) error
	ForceDelete(ctx context.Context, id int64) error
}

// AvatarStore resolves avatar URLs and drops an owner's files after a hard delete.
type AvatarStore interface {
	AvatarURLs(ctx context.Context, kind activity.Kind, ids []int64) (map[int64]string, error)
	PurgeOwner(ctx context.Context, kind activity.Kind, id int64) error
}

type StatsInvalidator interface {
	InvalidateStats(ctx context.Context)
}

type Aggregator interface {
	Aggregate(ctx context.Context, subject activity.Subject) ([]activity.Group, error)
}

type Service struct {
	repo       RepositoryAPI
	recorder   *activity.Recorder
	aggregator Aggregator
	avatars    AvatarStore
	stats      StatsInvalidator
	bcryptCost int
	logger     *slog.Logger
}

type ServiceOption func(*Service)

func WithAvatars(a AvatarStore) ServiceOption {
	return func(s *Service) { s.avatars = a }
}

func WithStatsInvalidator(i StatsInvalidator) ServiceOption {
	return func(s *Service) { s.stats = i }
}

func WithBCryptCost(cost int) ServiceOption {
	return func(s *Service) { s.bcryptCost = cost }
}

func NewService(repo RepositoryAPI, recorder *activity.Recorder, aggregator Aggregator, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		repo:       repo,
		recorder:   recorder,
		aggregator: aggregator,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) List(ctx context.Context, params listing.Params) (listing.Page[UserResponse], error) {
	rows, total, err := s.repo.List(ctx, params)
	if err != nil {
		s.logger.Error("failed to list users", "error", err)
		return listing.Page[UserResponse]{}, err
	}

	users := make([]*User, 0, len(rows))
	for i := range rows {
		users = append(users, FromDataModel(&rows[i]))
	}
	s.attachAvatars(ctx, users...)

	page := listing.NewPage(Listing, params, users, total)
	return listing.MapPage(page, (*User).ToResponse), nil
}

func (s *Service) Get(ctx context.Context, id int64) (*UserResponse, error) {
	row, err := s.repo.GetByID(ctx, id, false)
	if err != nil {
		return nil, err
	}
	u := FromDataModel(row)
	s.attachAvatars(ctx, u)
	resp := u.ToResponse()
	return &resp, nil
}

func (s *Service) Create(ctx context.Context, actor *audit.Actor, dto UserDTO) (*User, error) {
	dto.normalize()
	if err := s.validate(ctx, dto, 0); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(dto.Password, s.bcryptCost)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	row := &userDatamodel.User{
		Role:      dto.Role,
		FirstName: dto.FirstName,
		LastName:  dto.LastName,
		Email:     dto.Email,
		Password:  hash,
	}
	audit.StampCreate(&row.Stamps, actor)

	err = s.repo.WithTx(ctx, func(repo RepositoryAPI) error {
		if err := repo.Create(ctx, row); err != nil {
			return err
		}
		return s.recorder.Record(ctx, repo.Activity(), actor, activity.Subject{Kind: activity.KindUser, ID: row.ID}, activity.Created, nil)
	})
	if err != nil {
		s.logger.Error("failed to create user", "error", err, "email", dto.Email)
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("user created", "user_id", row.ID, "role", row.Role)
	return FromDataModel(row), nil
}

func (s *Service) Update(ctx context.Context, actor *audit.Actor, id int64, dto UserDTO) (*User, error) {
	dto.normalize()

	var updated *userDatamodel.User
	err := s.repo.WithTx(ctx, func(repo RepositoryAPI) error {
		row, err := repo.GetByID(ctx, id, false)
		if err != nil {
			return err
		}
		if err := s.validateWith(ctx, repo, dto, id); err != nil {
			return err
		}

		before := snapshot(row)
		row.Role = dto.Role
		row.FirstName = dto.FirstName
		row.LastName = dto.LastName
		row.Email = dto.Email
		if dto.Password != "" {
			hash, err := auth.HashPassword(dto.Password, s.bcryptCost)
			if err != nil {
				return internal.NewInternalError("failed to hash password", err)
			}
			row.Password = hash
		}
		audit.StampUpdate(&row.Stamps, actor)

		if err := repo.Save(ctx, row); err != nil {
			return err
		}
		updated = row

		changes := activity.Diff(LoggedAttributes, before, snapshot(row))
		return s.recorder.Record(ctx, repo.Activity(), actor, activity.Subject{Kind: activity.KindUser, ID: row.ID}, activity.Updated, changes)
	})
	if err != nil {
		s.logFailure("failed to update user", err, id)
		return nil, err
	}

	s.invalidate(ctx)
	return FromDataModel(updated), nil
}

// Delete soft-deletes a user. Deleting one's own account is refused with
// internal.ErrCannotDeleteSelf and nothing changes.
func (s *Service) Delete(ctx context.Context, actor *audit.Actor, id int64) error {
	if actor != nil && actor.ID == id {
		s.logger.Warn("user tried to delete own account", "user_id", id)
		return internal.ErrCannotDeleteSelf
	}

	err := s.repo.WithTx(ctx, func(repo RepositoryAPI) error {
		row, err := repo.GetByID(ctx, id, false)
		if err != nil {
			return err
		}
		audit.StampDelete(&row.Stamps, actor)
		if err := repo.SoftDelete(ctx, row); err != nil {
			return err
		}
		return s.recorder.Record(ctx, repo.Activity(), actor, activity.Subject{Kind: activity.KindUser, ID: id}, activity.Deleted, nil)
	})
	if err != nil {
		s.logFailure("failed to delete user", err, id)
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) Restore(ctx context.Context, actor *audit.Actor, id int64) (*User, error) {
	var restored *userDatamodel.User
	err := s.repo.WithTx(ctx, func(repo RepositoryAPI) error {
		row, err := repo.GetByID(ctx, id, true)
		if err != nil {
			return err
		}
		if !row.DeletedAt.Valid {
			restored = row
			return nil
		}
		audit.StampRestore(&row.Stamps, actor)
		if err := repo.Restore(ctx, row); err != nil {
			return err
		}
		restored = row
		return s.recorder.Record(ctx, repo.Activity(), actor, activity.Subject{Kind: activity.KindUser, ID: id}, activity.Restored, nil)
	})
	if err != nil {
		s.logFailure("failed to restore user", err, id)
		return nil, err
	}
	s.invalidate(ctx)
	return FromDataModel(restored), nil
}

func (s *Service) ForceDelete(ctx context.Context, actor *audit.Actor, id int64) error {
	if actor != nil && actor.ID == id {
		return internal.ErrCannotDeleteSelf
	}

	err := s.repo.WithTx(ctx, func(repo RepositoryAPI) error {
		if _, err := repo.GetByID(ctx, id, true); err != nil {
			return err
		}
		if err := repo.ForceDelete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, repo.Activity(), actor, activity.Subject{Kind: activity.KindUser, ID: id}, activity.PermanentlyDeleted, nil)
	})
	if err != nil {
		s.logFailure("failed to force delete user", err, id)
		return err
	}

	if s.avatars != nil {
		if err := s.avatars.PurgeOwner(ctx, activity.KindUser, id); err != nil {
			s.logger.Warn("failed to purge user media", "user_id", id, "error", err)
		}
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) Activity(ctx context.Context, id int64) ([]activity.Group, error) {
	if _, err := s.repo.GetByID(ctx, id, false); err != nil {
		return nil, err
	}
	groups, err := s.aggregator.Aggregate(ctx, activity.Subject{Kind: activity.KindUser, ID: id})
	if err != nil {
		s.logger.Error("failed to aggregate user activity", "user_id", id, "error", err)
		return nil, err
	}
	return groups, nil
}

// Exists reports whether a live user with id exists.
func (s *Service) Exists(ctx context.Context, id int64) error {
	_, err := s.repo.GetByID(ctx, id, false)
	return err
}

func (s *Service) Options() OptionsResponse {
	roles := make([]RoleOption, 0, len(auth.AllRoles))
	for _, r := range auth.AllRoles {
		roles = append(roles, RoleOption{Value: string(r), Label: string(r)})
	}
	return OptionsResponse{Roles: roles}
}

func (s *Service) validate(ctx context.Context, dto UserDTO, exceptID int64) error {
	return s.validateWith(ctx, s.repo, dto, exceptID)
}

func (s *Service) validateWith(ctx context.Context, repo RepositoryAPI, dto UserDTO, exceptID int64) error {
	if err := dto.Validate(exceptID == 0); err != nil {
		if appErr, ok := internal.IsAppError(err); ok && appErr.Type == internal.ErrorTypeValidation {
			return err
		}
		return internal.NewInternalError("failed to validate user", err)
	}

	taken, err := repo.EmailTaken(ctx, dto.Email, exceptID)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if taken {
		return internal.NewValidationFieldError("email", "The email has already been taken.", internal.ErrCodeDuplicateEmail)
	}
	return nil
}

func (s *Service) attachAvatars(ctx context.Context, users ...*User) {
	if s.avatars == nil || len(users) == 0 {
		return
	}
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	urls, err := s.avatars.AvatarURLs(ctx, activity.KindUser, ids)
	if err != nil {
		s.logger.Warn("failed to resolve avatars", "error", err)
		return
	}
	for _, u := range users {
		if url, ok := urls[u.ID]; ok {
			u.AvatarURL = &url
		}
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.stats != nil {
		s.stats.InvalidateStats(ctx)
	}
}

func (s *Service) logFailure(msg string, err error, id int64) {
	if errors.Is(err, internal.ErrUserNotFound) {
		s.logger.Warn(msg, "user_id", id, "error", err)
		return
	}
	if appErr, ok := internal.IsAppError(err); ok && appErr.Type == internal.ErrorTypeValidation {
		return
	}
	s.logger.Error(msg, "user_id", id, "error", err)
}
