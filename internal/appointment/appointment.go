package appointment

import (
	"fmt"
	"time"

	"github.com/frahmantamala/clinic-management/internal/activity"
	"github.com/frahmantamala/clinic-management/internal/core/common/validation"
	appointmentDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/appointment"
	"github.com/frahmantamala/clinic-management/internal/core/person"
	"github.com/frahmantamala/clinic-management/internal/listing"
)

type Status string

const (
	StatusScheduled   Status = "Scheduled"
	StatusCompleted   Status = "Completed"
	StatusCancelled   Status = "Cancelled"
	StatusNoShow      Status = "No Show"
	StatusRescheduled Status = "Rescheduled"
	StatusConfirmed   Status = "Confirmed"
)

var AllStatuses = []Status{StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled, StatusConfirmed}

type Type string

const (
	TypeOnline     Type = "Online"
	TypeInPerson   Type = "In Person"
	TypeFollowUp   Type = "Follow Up"
	TypeNewPatient Type = "New Patient"
)

var AllTypes = []Type{TypeOnline, TypeInPerson, TypeFollowUp, TypeNewPatient}

// LoggedAttributes are the appointment fields whose changes land in the activity log.
var LoggedAttributes = []string{"patient_id", "title", "appointment_date", "start_time", "end_time", "status"}

var Listing = listing.Definition{
	Table:        "appointments",
	SearchFields: []string{"title", "description", "patient.first_name", "patient.last_name"},
	SortFields: []string{
		"id", "title", "appointment_date", "start_time", "status", "created_at",
		"patient.last_name", "patient.first_name",
	},
	Relations: map[string]listing.Relation{
		"patient": {Table: "patients", ForeignKey: "patient_id", OwnerKey: "id"},
	},
}

type PatientSummary struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"full_name"`
}

type Staff struct {
	ID         int64  `json:"id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	FullName   string `json:"full_name"`
	Role       string `json:"role"`
	IsProvider bool   `json:"is_provider"`
}

type Appointment struct {
	ID              int64
	PatientID       int64
	Title           string
	Type            *string
	Description     *string
	AppointmentDate time.Time
	StartTime       string
	EndTime         string
	Status          Status
	Patient         *PatientSummary
	Users           []Staff
	CreatedByID     *int64
	UpdatedByID     *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

func (a *Appointment) Subject() activity.Subject {
	return activity.Subject{Kind: activity.KindAppointment, ID: a.ID}
}

// FormattedDate renders "Jan 02, 2006".
func (a *Appointment) FormattedDate() string {
	return a.AppointmentDate.Format("Jan 02, 2006")
}

// FormattedTime renders the range on a 12h clock, e.g. "9:00 AM - 9:30 AM".
func (a *Appointment) FormattedTime() string {
	return twelveHour(a.StartTime) + " - " + twelveHour(a.EndTime)
}

func (a *Appointment) FormattedDateTime() string {
	return a.FormattedDate() + " at " + a.FormattedTime()
}

func twelveHour(clock string) string {
	t, err := time.Parse(validation.ClockLayout, clock)
	if err != nil {
		return clock
	}
	return t.Format("3:04 PM")
}

type AppointmentResponse struct {
	ID                int64           `json:"id"`
	PatientID         int64           `json:"patient_id"`
	Title             string          `json:"title"`
	Type              *string         `json:"type"`
	Description       *string         `json:"description"`
	AppointmentDate   string          `json:"appointment_date"`
	StartTime         string          `json:"start_time"`
	EndTime           string          `json:"end_time"`
	Status            Status          `json:"status"`
	FormattedDate     string          `json:"formatted_date"`
	FormattedTime     string          `json:"formatted_time"`
	FormattedDateTime string          `json:"formatted_datetime"`
	Patient           *PatientSummary `json:"patient,omitempty"`
	Users             []Staff         `json:"users"`
	CreatedByID       *int64          `json:"created_by_id"`
	UpdatedByID       *int64          `json:"updated_by_id"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         *time.Time      `json:"deleted_at,omitempty"`
}

func (a *Appointment) ToResponse() AppointmentResponse {
	users := a.Users
	if users == nil {
		users = []Staff{}
	}
	return AppointmentResponse{
		ID:                a.ID,
		PatientID:         a.PatientID,
		Title:             a.Title,
		Type:              a.Type,
		Description:       a.Description,
		AppointmentDate:   a.AppointmentDate.Format(validation.DateLayout),
		StartTime:         a.StartTime,
		EndTime:           a.EndTime,
		Status:            a.Status,
		FormattedDate:     a.FormattedDate(),
		FormattedTime:     a.FormattedTime(),
		FormattedDateTime: a.FormattedDateTime(),
		Patient:           a.Patient,
		Users:             users,
		CreatedByID:       a.CreatedByID,
		UpdatedByID:       a.UpdatedByID,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
		DeletedAt:         a.DeletedAt,
	}
}

// CalendarEvent is the shape consumed by the calendar widget.
type CalendarEvent struct {
	ID              int64              `json:"id"`
	Title           string             `json:"title"`
	Start           string             `json:"start"`
	End             string             `json:"end"`
	BackgroundColor string             `json:"backgroundColor"`
	BorderColor     string             `json:"borderColor"`
	ExtendedProps   CalendarEventProps `json:"extendedProps"`
}

type CalendarEventProps struct {
	Status      Status  `json:"status"`
	PatientName string  `json:"patient_name"`
	Description *string `json:"description"`
}

type statusColors struct {
	background string
	border     string
}

var calendarColors = map[Status]statusColors{
	StatusScheduled: {"#3b82f6", "#2563eb"},
	StatusCompleted: {"#22c55e", "#16a34a"},
	StatusCancelled: {"#ef4444", "#dc2626"},
	StatusNoShow:    {"#6b7280", "#4b5563"},
}

func (a *Appointment) ToCalendarEvent() CalendarEvent {
	colors, ok := calendarColors[a.Status]
	if !ok {
		colors = calendarColors[StatusScheduled]
	}
	patientName := ""
	if a.Patient != nil {
		patientName = a.Patient.FullName
	}
	day := a.AppointmentDate.Format(validation.DateLayout)
	return CalendarEvent{
		ID:              a.ID,
		Title:           fmt.Sprintf("%s - %s", a.Title, patientName),
		Start:           day + "T" + a.StartTime + ":00",
		End:             day + "T" + a.EndTime + ":00",
		BackgroundColor: colors.background,
		BorderColor:     colors.border,
		ExtendedProps: CalendarEventProps{
			Status:      a.Status,
			PatientName: patientName,
			Description: a.Description,
		},
	}
}

// snapshot returns the logged attributes of a row. Dates are compared as
// calendar days so a reload from the store does not count as a change.
func snapshot(a *appointmentDatamodel.Appointment) map[string]any {
	return map[string]any{
		"patient_id":       a.PatientID,
		"title":            a.Title,
		"appointment_date": a.AppointmentDate.Format(validation.DateLayout),
		"start_time":       a.StartTime,
		"end_time":         a.EndTime,
		"status":           a.Status,
	}
}

func FromDataModel(a *appointmentDatamodel.Appointment) *Appointment {
	out := &Appointment{
		ID:              a.ID,
		PatientID:       a.PatientID,
		Title:           a.Title,
		Type:            a.Type,
		Description:     a.Description,
		AppointmentDate: validation.DateOnly(a.AppointmentDate),
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		Status:          Status(a.Status),
		CreatedByID:     a.CreatedByID,
		UpdatedByID:     a.UpdatedByID,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	if a.DeletedAt.Valid {
		t := a.DeletedAt.Time
		out.DeletedAt = &t
	}
	if a.Patient != nil {
		out.Patient = &PatientSummary{
			ID:        a.Patient.ID,
			FirstName: a.Patient.FirstName,
			LastName:  a.Patient.LastName,
			FullName:  person.FullName(a.Patient.FirstName, a.Patient.LastName),
		}
	}
	for _, au := range a.Assignments {
		if au.User == nil {
			continue
		}
		out.Users = append(out.Users, Staff{
			ID:         au.User.ID,
			FirstName:  au.User.FirstName,
			LastName:   au.User.LastName,
			FullName:   person.FullName(au.User.FirstName, au.User.LastName),
			Role:       au.User.Role,
			IsProvider: au.IsProvider,
		})
	}
	return out
}

type Option struct {
	Value any    `json:"value"`
	Label string `json:"label"`
}

type StaffOption struct {
	Value int64  `json:"value"`
	Label string `json:"label"`
	Role  string `json:"role"`
}

type OptionsResponse struct {
	Statuses []Option      `json:"statuses"`
	Types    []Option      `json:"types"`
	Patients []Option      `json:"patients"`
	Users    []StaffOption `json:"users"`
}
