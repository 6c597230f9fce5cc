package appointment

import (
	"strings"
	"time"

	"github.com/frahmantamala/clinic-management/internal"
	"github.com/frahmantamala/clinic-management/internal/core/common/validation"
	ozzo "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	msgStaffRequired = "At least one staff member must be assigned to the appointment."
	msgStaffMissing  = "One or more selected staff members do not exist."
	msgEndAfterStart = "The end time field must be a time after start time."
	msgProviderStaff = "The provider must be one of the assigned staff members."
	msgPatientExists = "The selected patient id is invalid."
)

type AppointmentDTO struct {
	PatientID       int64   `json:"patient_id"`
	Title           string  `json:"title"`
	Type            *string `json:"type"`
	Description     *string `json:"description"`
	AppointmentDate string  `json:"appointment_date"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	Status          string  `json:"status"`
	UserIDs         []int64 `json:"user_ids"`
	ProviderID      *int64  `json:"provider_id"`
}

func (d *AppointmentDTO) normalize() {
	d.Title = strings.TrimSpace(d.Title)
	d.AppointmentDate = strings.TrimSpace(d.AppointmentDate)
	d.Status = strings.TrimSpace(d.Status)
	d.StartTime = normalizeClock(d.StartTime)
	d.EndTime = normalizeClock(d.EndTime)
	d.Type = blankToNil(d.Type)
	d.Description = blankToNil(d.Description)
	d.UserIDs = uniqueIDs(d.UserIDs)
}

func normalizeClock(s string) string {
	s = strings.TrimSpace(s)
	if c, err := validation.ParseClock(s); err == nil {
		return c
	}
	return s
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Validate runs the field rules that need no store access.
func (d AppointmentDTO) Validate() error {
	bag := validation.NewBag()
	err := bag.Merge(ozzo.ValidateStruct(&d,
		ozzo.Field(&d.PatientID, validation.Required("patient_id")),
		ozzo.Field(&d.Title, validation.Required("title"), validation.MaxLength("title", 255)),
		ozzo.Field(&d.Type, validation.In("type", typeStrings()...)),
		ozzo.Field(&d.AppointmentDate, validation.Required("appointment_date"), validation.Date("appointment_date")),
		ozzo.Field(&d.StartTime, validation.Required("start_time"), validation.Clock("start_time")),
		ozzo.Field(&d.EndTime, validation.Required("end_time"), validation.Clock("end_time")),
		ozzo.Field(&d.Status, validation.Required("status"), validation.In("status", statusStrings()...)),
		ozzo.Field(&d.UserIDs, ozzo.Required.Error(msgStaffRequired)),
	))
	if err != nil {
		return err
	}

	if !bag.Has("start_time") && !bag.Has("end_time") && d.EndTime <= d.StartTime {
		bag.Add("end_time", msgEndAfterStart, internal.ErrCodeInvalidTime)
	}
	if d.ProviderID != nil && !containsID(d.UserIDs, *d.ProviderID) {
		bag.Add("provider_id", msgProviderStaff, internal.ErrCodeValidationFailed)
	}
	return bag.Err()
}

// Window returns the booking window the payload asks for. Only call after Validate.
func (d AppointmentDTO) Window() Window {
	date, _ := validation.ParseDate(d.AppointmentDate)
	return Window{Date: date, Start: d.StartTime, End: d.EndTime}
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func statusStrings() []string {
	out := make([]string, 0, len(AllStatuses))
	for _, s := range AllStatuses {
		out = append(out, string(s))
	}
	return out
}

func typeStrings() []string {
	out := make([]string, 0, len(AllTypes))
	for _, t := range AllTypes {
		out = append(out, string(t))
	}
	return out
}

// CalendarRange is the validated start/end pair of a calendar query.
type CalendarRange struct {
	Start time.Time
	End   time.Time
}

// ParseCalendarRange requires both dates with end after start.
func ParseCalendarRange(start, end string) (CalendarRange, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	bag := validation.NewBag()
	err := bag.Merge(ozzo.Errors{
		"start": ozzo.Validate(start, validation.Required("start"), validation.Date("start")),
		"end":   ozzo.Validate(end, validation.Required("end"), validation.Date("end")),
	}.Filter())
	if err != nil {
		return CalendarRange{}, err
	}
	if !bag.Empty() {
		return CalendarRange{}, bag.Err()
	}

	s, _ := validation.ParseDate(start)
	e, _ := validation.ParseDate(end)
	if !e.After(s) {
		bag.Add("end", "The end field must be a date after start.", internal.ErrCodeInvalidDate)
		return CalendarRange{}, bag.Err()
	}
	return CalendarRange{Start: s, End: e}, nil
}
