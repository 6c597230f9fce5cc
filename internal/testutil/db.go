// Package testutil builds throwaway sqlite databases for repository and handler specs.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	activityDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/activity"
	appointmentDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/appointment"
	mediaDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/media"
	patientDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/patient"
	userDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/user"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory database with every table migrated. A single
// connection is used so transactions see the same memory database; code
// running inside a transaction must only use the transaction handle.
func NewDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&userDatamodel.User{},
		&patientDatamodel.Patient{},
		&appointmentDatamodel.Appointment{},
		&appointmentDatamodel.AppointmentUser{},
		&activityDatamodel.Activity{},
		&mediaDatamodel.Media{},
	)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Date builds a UTC calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func SeedUser(db *gorm.DB, role, first, last string) *userDatamodel.User {
	u := &userDatamodel.User{
		Role:      role,
		FirstName: first,
		LastName:  last,
		Email:     fmt.Sprintf("%s.%s.%s@example.com", first, last, uuid.NewString()[:8]),
		Password:  "x",
	}
	if err := db.Create(u).Error; err != nil {
		panic(err)
	}
	return u
}

func SeedPatient(db *gorm.DB, first, last string) *patientDatamodel.Patient {
	p := &patientDatamodel.Patient{
		FirstName:   first,
		LastName:    last,
		Email:       fmt.Sprintf("%s.%s.%s@example.com", first, last, uuid.NewString()[:8]),
		DateOfBirth: Date(1990, time.January, 1),
		Password:    "x",
	}
	if err := db.Create(p).Error; err != nil {
		panic(err)
	}
	return p
}

// SeedAppointment stores an appointment assigned to userIDs.
func SeedAppointment(db *gorm.DB, patientID int64, date time.Time, start, end, status string, userIDs ...int64) *appointmentDatamodel.Appointment {
	a := &appointmentDatamodel.Appointment{
		PatientID:       patientID,
		Title:           "Checkup",
		AppointmentDate: date,
		StartTime:       start,
		EndTime:         end,
		Status:          status,
	}
	if err := db.Create(a).Error; err != nil {
		panic(err)
	}
	for _, uid := range userIDs {
		if err := db.Create(&appointmentDatamodel.AppointmentUser{AppointmentID: a.ID, UserID: uid}).Error; err != nil {
			panic(err)
		}
	}
	return a
}
