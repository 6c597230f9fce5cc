package media

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/frahmantamala/clinic-management/internal"
	"github.com/frahmantamala/clinic-management/internal/activity"
	"github.com/frahmantamala/clinic-management/internal/audit"
	mediaDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/media"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

type RepositoryAPI interface {
	WithTx(ctx context.Context, fn func(repo RepositoryAPI) error) error
	Activity() activity.Writer

	// Collection returns the live rows of one owner collection.
	Collection(ctx context.Context, kind activity.Kind, ownerID int64, collection string) ([]mediaDatamodel.Media, error)
	// Latest returns the newest live row per owner for a collection.
	Latest(ctx context.Context, kind activity.Kind, ownerIDs []int64, collection string) ([]mediaDatamodel.Media, error)
	Create(ctx context.Context, m *mediaDatamodel.Media) error
	SoftDelete(ctx context.Context, m *mediaDatamodel.Media) error
	// ForceDeleteOwner hard-deletes every row of an owner and returns them.
	ForceDeleteOwner(ctx context.Context, kind activity.Kind, ownerID int64) ([]mediaDatamodel.Media, error)
}

// OwnerCheck returns a not-found error when the owner does not exist.
type OwnerCheck func(ctx context.Context, id int64) error

type Service struct {
	repo     RepositoryAPI
	storage  *Storage
	recorder *activity.Recorder
	owners   map[activity.Kind]OwnerCheck
	maxSize  int64
	logger   *slog.Logger
}

type ServiceOption func(*Service)

func WithOwner(kind activity.Kind, check OwnerCheck) ServiceOption {
	return func(s *Service) { s.owners[kind] = check }
}

func WithMaxSize(bytes int64) ServiceOption {
	return func(s *Service) {
		if bytes > 0 {
			s.maxSize = bytes
		}
	}
}

func NewService(repo RepositoryAPI, storage *Storage, recorder *activity.Recorder, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		repo:     repo,
		storage:  storage,
		recorder: recorder,
		owners:   map[activity.Kind]OwnerCheck{},
		maxSize:  DefaultMaxAvatarSize,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) MaxSize() int64 {
	return s.maxSize
}

// CheckOwner resolves the owner of kind, mapping unknown kinds to a not-found error.
func (s *Service) CheckOwner(ctx context.Context, kind activity.Kind, ownerID int64) error {
	check, ok := s.owners[kind]
	if !ok {
		return internal.ErrEntityNotFound
	}
	return check(ctx, ownerID)
}

// Upload replaces the owner's avatar with data. The file is written before
// the transaction; it is removed again if the transaction fails, and the
// replaced files are removed only after commit.
func (s *Service) Upload(ctx context.Context, actor *audit.Actor, kind activity.Kind, ownerID int64, fileName string, data []byte) (*Media, error) {
	if err := s.CheckOwner(ctx, kind, ownerID); err != nil {
		return nil, err
	}
	mime, err := s.checkFile(data)
	if err != nil {
		return nil, err
	}

	diskName := uuid.NewString() + mime.Extension()
	if err := s.storage.Put(diskName, data); err != nil {
		s.logger.Error("failed to store avatar", "owner_type", kind, "owner_id", ownerID, "error", err)
		return nil, internal.NewValidationFieldError(FormField, "The avatar failed to upload.", internal.ErrCodeInvalidFileType)
	}

	row := &mediaDatamodel.Media{
		ModelType:      string(kind),
		ModelID:        ownerID,
		CollectionName: CollectionAvatar,
		FileName:       filepath.Base(fileName),
		DiskName:       diskName,
		MimeType:       mime.String(),
		Size:           int64(len(data)),
	}
	audit.StampCreate(&row.Stamps, actor)

	var replaced []mediaDatamodel.Media
	err = s.repo.WithTx(ctx, func(repo RepositoryAPI) error {
		old, err := s.clear(ctx, repo, actor, kind, ownerID)
		if err != nil {
			return err
		}
		replaced = old

		if err := repo.Create(ctx, row); err != nil {
			return err
		}
		return s.recorder.Record(ctx, repo.Activity(), actor, activity.Subject{Kind: activity.KindMedia, ID: row.ID}, activity.Created, createdChanges(row))
	})
	if err != nil {
		if rmErr := s.storage.Remove(diskName); rmErr != nil {
			s.logger.Warn("failed to remove orphaned avatar", "disk_name", diskName, "error", rmErr)
		}
		s.logger.Error("failed to save avatar", "owner_type", kind, "owner_id", ownerID, "error", err)
		return nil, err
	}

	s.removeFiles(replaced)
	s.logger.Info("avatar uploaded", "owner_type", kind, "owner_id", ownerID, "media_id", row.ID)
	return s.toMedia(row), nil
}

// Remove clears the owner's avatar collection.
func (s *Service) Remove(ctx context.Context, actor *audit.Actor, kind activity.Kind, ownerID int64) error {
	if err := s.CheckOwner(ctx, kind, ownerID); err != nil {
		return err
	}

	var removed []mediaDatamodel.Media
	err := s.repo.WithTx(ctx, func(repo RepositoryAPI) error {
		old, err := s.clear(ctx, repo, actor, kind, ownerID)
		removed = old
		return err
	})
	if err != nil {
		s.logger.Error("failed to remove avatar", "owner_type", kind, "owner_id", ownerID, "error", err)
		return err
	}
	s.removeFiles(removed)
	return nil
}

// AvatarURLs maps owner ids to their current avatar URL. Owners without one are absent.
func (s *Service) AvatarURLs(ctx context.Context, kind activity.Kind, ids []int64) (map[int64]string, error) {
	urls := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return urls, nil
	}
	rows, err := s.repo.Latest(ctx, kind, ids, CollectionAvatar)
	if err != nil {
		return nil, err
	}
	for _, m := range rows {
		urls[m.ModelID] = s.storage.URL(m.DiskName)
	}
	return urls, nil
}

// PurgeOwner drops every media row and file of a hard-deleted owner.
func (s *Service) PurgeOwner(ctx context.Context, kind activity.Kind, ownerID int64) error {
	rows, err := s.repo.ForceDeleteOwner(ctx, kind, ownerID)
	if err != nil {
		return err
	}
	s.removeFiles(rows)
	return nil
}

// AttachFromFile uploads path from fs as the owner's avatar without an actor.
func (s *Service) AttachFromFile(ctx context.Context, kind activity.Kind, ownerID int64, fs afero.Fs, path string) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	_, err = s.Upload(ctx, nil, kind, ownerID, path, data)
	return err
}

func (s *Service) checkFile(data []byte) (*mimetype.MIME, error) {
	if len(data) == 0 {
		return nil, internal.NewValidationFieldError(FormField, "The avatar field is required.", internal.ErrCodeRequired)
	}
	if int64(len(data)) > s.maxSize {
		return nil, internal.NewValidationFieldError(FormField,
			"The avatar field must not be greater than "+kilobytes(s.maxSize)+" kilobytes.",
			internal.ErrCodeFileTooLarge)
	}
	mime := mimetype.Detect(data)
	if !mimetype.EqualsAny(mime.String(), allowedImageTypes...) {
		return nil, internal.NewValidationFieldError(FormField, "The avatar field must be an image.", internal.ErrCodeInvalidFileType)
	}
	return mime, nil
}

func (s *Service) clear(ctx context.Context, repo RepositoryAPI, actor *audit.Actor, kind activity.Kind, ownerID int64) ([]mediaDatamodel.Media, error) {
	rows, err := repo.Collection(ctx, kind, ownerID, CollectionAvatar)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		audit.StampDelete(&rows[i].Stamps, actor)
		if err := repo.SoftDelete(ctx, &rows[i]); err != nil {
			return nil, err
		}
		if err := s.recorder.Record(ctx, repo.Activity(), actor, activity.Subject{Kind: activity.KindMedia, ID: rows[i].ID}, activity.Deleted, nil); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func (s *Service) removeFiles(rows []mediaDatamodel.Media) {
	for _, m := range rows {
		if err := s.storage.Remove(m.DiskName); err != nil {
			s.logger.Warn("failed to remove avatar file", "disk_name", m.DiskName, "error", err)
		}
	}
}

func (s *Service) toMedia(m *mediaDatamodel.Media) *Media {
	return &Media{
		ID:             m.ID,
		OwnerKind:      m.ModelType,
		OwnerID:        m.ModelID,
		CollectionName: m.CollectionName,
		FileName:       m.FileName,
		MimeType:       m.MimeType,
		Size:           m.Size,
		URL:            s.storage.URL(m.DiskName),
		CreatedAt:      m.CreatedAt,
	}
}

func createdChanges(m *mediaDatamodel.Media) *activity.Changes {
	return &activity.Changes{Attributes: snapshot(m), Old: map[string]any{}}
}
