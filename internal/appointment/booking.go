package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/frahmantamala/clinic-management/internal"
	"github.com/frahmantamala/clinic-management/internal/core/common/validation"
)

const (
	msgPatientBooked = "This patient already has an appointment during this time."
	msgStaffBooked   = "The following users are already booked during this time: %s"
)

// Window is a same-day time range. Bounds are inclusive: a window ending at
// 09:30 overlaps one starting at 09:30.
type Window struct {
	Date  time.Time
	Start string
	End   string
}

// Overlaps reports whether two windows on the same day share at least one instant.
func (w Window) Overlaps(o Window) bool {
	if !validation.DateOnly(w.Date).Equal(validation.DateOnly(o.Date)) {
		return false
	}
	between := func(v string) bool { return v >= w.Start && v <= w.End }
	return between(o.Start) || between(o.End) || (o.Start <= w.Start && o.End >= w.End)
}

// BookingStore answers the overlap queries. Cancelled and soft-deleted
// appointments never conflict; exceptID excludes the appointment being edited.
type BookingStore interface {
	PatientBooked(ctx context.Context, patientID int64, w Window, exceptID int64) (bool, error)
	// BookedStaff returns the full names of the given users already booked in
	// w, deduplicated, ordered by appointment start time then id.
	BookedStaff(ctx context.Context, userIDs []int64, w Window, exceptID int64) ([]string, error)
}

// Booking is the candidate placement being checked.
type Booking struct {
	AppointmentID int64
	PatientID     int64
	UserIDs       []int64
	Window        Window
}

type BookingValidator struct {
	store BookingStore
}

func NewBookingValidator(store BookingStore) *BookingValidator {
	return &BookingValidator{store: store}
}

// Check runs the patient and staff double-booking checks independently and
// returns their field errors together, or nil when the booking is free.
func (v *BookingValidator) Check(ctx context.Context, b Booking) error {
	bag := validation.NewBag()

	booked, err := v.store.PatientBooked(ctx, b.PatientID, b.Window, b.AppointmentID)
	if err != nil {
		return fmt.Errorf("check patient booking: %w", err)
	}
	if booked {
		bag.Add("appointment_date", msgPatientBooked, internal.ErrCodeDoubleBooked)
	}

	if len(b.UserIDs) > 0 {
		names, err := v.store.BookedStaff(ctx, b.UserIDs, b.Window, b.AppointmentID)
		if err != nil {
			return fmt.Errorf("check staff booking: %w", err)
		}
		if len(names) > 0 {
			bag.Add("user_ids", fmt.Sprintf(msgStaffBooked, strings.Join(names, ", ")), internal.ErrCodeDoubleBooked)
		}
	}

	return bag.Err()
}
