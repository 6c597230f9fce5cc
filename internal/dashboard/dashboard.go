// Package dashboard serves the summary counts shown on the landing page.
package dashboard

import (
	"time"

	"github.com/frahmantamala/clinic-management/internal/core/person"
)

const (
	StatsKey    = "dashboard:stats"
	recentLimit = 5
	defaultTTL  = time.Minute
)

type Stats struct {
	TotalPatients        int64           `json:"total_patients"`
	TotalUsers           int64           `json:"total_users"`
	NewPatientsThisMonth int64           `json:"new_patients_this_month"`
	RecentPatients       []RecentPatient `json:"recent_patients"`
}

type RecentPatient struct {
	ID        int64      `json:"id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	FullName  string     `json:"full_name"`
	Email     string     `json:"email"`
	CreatedAt time.Time  `json:"created_at"`
	CreatedBy *CreatedBy `json:"created_by"`
}

type CreatedBy struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

// PatientRow is one recent patient joined with its creator.
type PatientRow struct {
	ID               int64     `db:"id"`
	FirstName        string    `db:"first_name"`
	LastName         string    `db:"last_name"`
	Email            string    `db:"email"`
	CreatedAt        time.Time `db:"created_at"`
	CreatorID        *int64    `db:"creator_id"`
	CreatorFirstName *string   `db:"creator_first_name"`
	CreatorLastName  *string   `db:"creator_last_name"`
}

func (r PatientRow) toRecent() RecentPatient {
	out := RecentPatient{
		ID:        r.ID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		FullName:  person.FullName(r.FirstName, r.LastName),
		Email:     r.Email,
		CreatedAt: r.CreatedAt,
	}
	if r.CreatorID != nil {
		var first, last string
		if r.CreatorFirstName != nil {
			first = *r.CreatorFirstName
		}
		if r.CreatorLastName != nil {
			last = *r.CreatorLastName
		}
		out.CreatedBy = &CreatedBy{ID: *r.CreatorID, FullName: person.FullName(first, last)}
	}
	return out
}

// MonthRange returns the first instant of now's month and of the next one.
func MonthRange(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 1, 0)
}
