package postgres

import (
	"context"
	"fmt"

	"github.com/frahmantamala/clinic-management/internal/activity"
	activityDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/activity"
	appointmentDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/appointment"
	mediaDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/media"
	patientDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/patient"
	userDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/user"
	"github.com/frahmantamala/clinic-management/internal/core/person"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const causerType = string(activity.KindUser)

type ActivityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) Write(ctx context.Context, e *activity.Entry) error {
	ct := causerType
	causerID := e.CauserID
	row := &activityDatamodel.Activity{
		LogName:     e.LogName,
		Description: string(e.Description),
		SubjectType: string(e.Subject.Kind),
		SubjectID:   e.Subject.ID,
		CauserType:  &ct,
		CauserID:    &causerID,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.CreatedAt,
	}
	if e.Properties != nil {
		row.Properties = datatypes.JSONMap(e.Properties)
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (r *ActivityRepository) FindBySubjects(ctx context.Context, kind activity.Kind, ids []int64) ([]activity.Activity, error) {
	var rows []activityDatamodel.Activity
	err := r.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id IN ?", string(kind), ids).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	subjectIDs := make([]int64, 0, len(rows))
	causerIDs := make([]int64, 0, len(rows))
	for _, row := range rows {
		subjectIDs = append(subjectIDs, row.SubjectID)
		if row.CauserID != nil {
			causerIDs = append(causerIDs, *row.CauserID)
		}
	}

	labels, err := r.Labels(ctx, kind, subjectIDs)
	if err != nil {
		return nil, err
	}
	causers, err := r.causers(ctx, causerIDs)
	if err != nil {
		return nil, err
	}

	out := make([]activity.Activity, 0, len(rows))
	for _, row := range rows {
		a := activity.Activity{
			ID:          row.ID,
			LogName:     row.LogName,
			Description: row.Description,
			Subject:     activity.Subject{Kind: kind, ID: row.SubjectID},
			CreatedAt:   row.CreatedAt,
		}
		if row.Properties != nil {
			a.Properties = map[string]any(row.Properties)
		}
		if label, ok := labels[row.SubjectID]; ok {
			a.SubjectIdentifier = activity.SubjectIdentifier(label)
		}
		if row.CauserID != nil {
			a.Causer = causers[*row.CauserID]
		}
		out = append(out, a)
	}
	return out, nil
}

// Labels loads display-name candidates per kind, including soft-deleted rows.
func (r *ActivityRepository) Labels(ctx context.Context, kind activity.Kind, ids []int64) (map[int64]activity.Label, error) {
	out := make(map[int64]activity.Label, len(ids))
	db := r.db.WithContext(ctx).Unscoped()

	switch kind {
	case activity.KindUser:
		var users []userDatamodel.User
		if err := db.Where("id IN ?", ids).Find(&users).Error; err != nil {
			return nil, fmt.Errorf("load user labels: %w", err)
		}
		for _, u := range users {
			out[u.ID] = activity.Label{FullName: person.FullName(u.FirstName, u.LastName)}
		}
	case activity.KindPatient:
		var patients []patientDatamodel.Patient
		if err := db.Where("id IN ?", ids).Find(&patients).Error; err != nil {
			return nil, fmt.Errorf("load patient labels: %w", err)
		}
		for _, p := range patients {
			out[p.ID] = activity.Label{FullName: person.FullName(p.FirstName, p.LastName)}
		}
	case activity.KindAppointment:
		var appointments []appointmentDatamodel.Appointment
		if err := db.Select("id", "title").Where("id IN ?", ids).Find(&appointments).Error; err != nil {
			return nil, fmt.Errorf("load appointment labels: %w", err)
		}
		for _, a := range appointments {
			out[a.ID] = activity.Label{Title: a.Title}
		}
	case activity.KindMedia:
		var media []mediaDatamodel.Media
		if err := db.Select("id", "file_name").Where("id IN ?", ids).Find(&media).Error; err != nil {
			return nil, fmt.Errorf("load media labels: %w", err)
		}
		for _, m := range media {
			out[m.ID] = activity.Label{FileName: m.FileName}
		}
	default:
		return nil, fmt.Errorf("unknown subject kind %q", kind)
	}
	return out, nil
}

func (r *ActivityRepository) causers(ctx context.Context, ids []int64) (map[int64]*activity.Causer, error) {
	out := make(map[int64]*activity.Causer, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []userDatamodel.User
	if err := r.db.WithContext(ctx).Unscoped().Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load causers: %w", err)
	}
	for _, u := range users {
		out[u.ID] = &activity.Causer{
			ID:       u.ID,
			FullName: person.FullName(u.FirstName, u.LastName),
			Deleted:  u.DeletedAt.Valid,
		}
	}
	return out, nil
}
