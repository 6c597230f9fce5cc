package patient

import (
	"time"

	"github.com/frahmantamala/clinic-management/internal/activity"
	"github.com/frahmantamala/clinic-management/internal/appointment"
	"github.com/frahmantamala/clinic-management/internal/core/common/validation"
	patientDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/patient"
	"github.com/frahmantamala/clinic-management/internal/core/person"
	"github.com/frahmantamala/clinic-management/internal/listing"
)

// LoggedAttributes are the patient fields whose changes land in the activity log.
var LoggedAttributes = []string{"date_of_birth", "first_name", "middle_name", "last_name", "email"}

var Listing = listing.Definition{
	Table:        "patients",
	SearchFields: []string{"first_name", "last_name", "email"},
	SortFields:   []string{"id", "first_name", "last_name", "email", "date_of_birth", "created_at"},
}

const (
	searchLimit       = 10
	appointmentsChunk = 5
)

type Patient struct {
	ID          int64
	FirstName   string
	MiddleName  *string
	LastName    string
	Email       string
	DateOfBirth time.Time
	AvatarURL   *string
	CreatedByID *int64
	UpdatedByID *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

func (p *Patient) FullName() string {
	return person.FullName(p.FirstName, p.LastName)
}

func (p *Patient) FullNameWithMiddle() string {
	return person.FullNameWithMiddle(p.FirstName, p.MiddleName, p.LastName)
}

func (p *Patient) Initials() string {
	return person.Initials(p.FirstName, p.LastName)
}

func (p *Patient) Subject() activity.Subject {
	return activity.Subject{Kind: activity.KindPatient, ID: p.ID}
}

type PatientResponse struct {
	ID                 int64      `json:"id"`
	FirstName          string     `json:"first_name"`
	MiddleName         *string    `json:"middle_name"`
	LastName           string     `json:"last_name"`
	FullName           string     `json:"full_name"`
	FullNameWithMiddle string     `json:"full_name_with_middle"`
	Initials           string     `json:"initials"`
	Email              string     `json:"email"`
	DateOfBirth        string     `json:"date_of_birth"`
	AvatarURL          *string    `json:"avatar_url"`
	CreatedByID        *int64     `json:"created_by_id"`
	UpdatedByID        *int64     `json:"updated_by_id"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
}

func (p *Patient) ToResponse() PatientResponse {
	return PatientResponse{
		ID:                 p.ID,
		FirstName:          p.FirstName,
		MiddleName:         p.MiddleName,
		LastName:           p.LastName,
		FullName:           p.FullName(),
		FullNameWithMiddle: p.FullNameWithMiddle(),
		Initials:           p.Initials(),
		Email:              p.Email,
		DateOfBirth:        p.DateOfBirth.Format(validation.DateLayout),
		AvatarURL:          p.AvatarURL,
		CreatedByID:        p.CreatedByID,
		UpdatedByID:        p.UpdatedByID,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
		DeletedAt:          p.DeletedAt,
	}
}

// SearchResult is the compact shape used by patient pickers.
type SearchResult struct {
	ID          int64   `json:"id"`
	FullName    string  `json:"full_name"`
	Email       string  `json:"email"`
	DateOfBirth string  `json:"date_of_birth"`
	AvatarURL   *string `json:"avatar_url"`
}

type ShowResponse struct {
	Patient           PatientResponse                   `json:"patient"`
	Appointments      []appointment.AppointmentResponse `json:"appointments"`
	TotalAppointments int64                             `json:"total_appointments"`
}

type LoadMoreResponse struct {
	Appointments []appointment.AppointmentResponse `json:"appointments"`
	HasMore      bool                              `json:"has_more"`
}

func snapshot(p *patientDatamodel.Patient) map[string]any {
	var middle any
	if p.MiddleName != nil {
		middle = *p.MiddleName
	}
	return map[string]any{
		"date_of_birth": p.DateOfBirth.Format(validation.DateLayout),
		"first_name":    p.FirstName,
		"middle_name":   middle,
		"last_name":     p.LastName,
		"email":         p.Email,
	}
}

func FromDataModel(p *patientDatamodel.Patient) *Patient {
	out := &Patient{
		ID:          p.ID,
		FirstName:   p.FirstName,
		MiddleName:  p.MiddleName,
		LastName:    p.LastName,
		Email:       p.Email,
		DateOfBirth: validation.DateOnly(p.DateOfBirth),
		CreatedByID: p.CreatedByID,
		UpdatedByID: p.UpdatedByID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.DeletedAt.Valid {
		t := p.DeletedAt.Time
		out.DeletedAt = &t
	}
	return out
}
