package postgres

import (
	"context"

	"github.com/frahmantamala/clinic-management/internal/activity"
	appointmentDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/appointment"
	mediaDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/media"
	"gorm.io/gorm"
)

// RegisterSchemas wires the activity schemas of every aggregatable kind.
// Resolvers read through Unscoped so soft-deleted relations keep their history.
func RegisterSchemas(agg *activity.Aggregator, db *gorm.DB) {
	agg.Register(activity.KindPatient,
		[]string{activity.SelfRelation, "appointments", "media"},
		map[string]activity.Resolver{
			"appointments": patientAppointments(db),
			"media":        ownedMedia(db, activity.KindPatient),
		})

	agg.Register(activity.KindUser,
		[]string{activity.SelfRelation, "media"},
		map[string]activity.Resolver{
			"media": ownedMedia(db, activity.KindUser),
		})

	agg.Register(activity.KindAppointment,
		[]string{activity.SelfRelation, "patient"},
		map[string]activity.Resolver{
			"patient": appointmentPatient(db),
		})
}

func patientAppointments(db *gorm.DB) activity.Resolver {
	return func(ctx context.Context, patientID int64) (activity.Kind, []int64, error) {
		var ids []int64
		err := db.WithContext(ctx).Unscoped().
			Model(&appointmentDatamodel.Appointment{}).
			Where("patient_id = ?", patientID).
			Pluck("id", &ids).Error
		return activity.KindAppointment, ids, err
	}
}

func ownedMedia(db *gorm.DB, owner activity.Kind) activity.Resolver {
	return func(ctx context.Context, ownerID int64) (activity.Kind, []int64, error) {
		var ids []int64
		err := db.WithContext(ctx).Unscoped().
			Model(&mediaDatamodel.Media{}).
			Where("model_type = ? AND model_id = ?", string(owner), ownerID).
			Pluck("id", &ids).Error
		return activity.KindMedia, ids, err
	}
}

func appointmentPatient(db *gorm.DB) activity.Resolver {
	return func(ctx context.Context, appointmentID int64) (activity.Kind, []int64, error) {
		var ids []int64
		err := db.WithContext(ctx).Unscoped().
			Model(&appointmentDatamodel.Appointment{}).
			Where("id = ?", appointmentID).
			Pluck("patient_id", &ids).Error
		return activity.KindPatient, ids, err
	}
}
