package user

import (
	"time"

	"github.com/frahmantamala/clinic-management/internal/activity"
	"github.com/frahmantamala/clinic-management/internal/audit"
	"github.com/frahmantamala/clinic-management/internal/auth"
	userDatamodel "github.com/frahmantamala/clinic-management/internal/core/datamodel/user"
	"github.com/frahmantamala/clinic-management/internal/core/person"
	"github.com/frahmantamala/clinic-management/internal/listing"
	"gorm.io/gorm"
)

// LoggedAttributes are the user fields whose changes land in the activity log.
var LoggedAttributes = []string{"role", "first_name", "last_name", "email"}

var Listing = listing.Definition{
	Table:        "users",
	SearchFields: []string{"first_name", "last_name", "email"},
	SortFields:   []string{"id", "first_name", "last_name", "email", "role", "created_at"},
}

type User struct {
	ID          int64      `json:"id"`
	Role        auth.Role  `json:"role"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Email       string     `json:"email"`
	AvatarURL   *string    `json:"avatar_url"`
	CreatedByID *int64     `json:"created_by_id"`
	UpdatedByID *int64     `json:"updated_by_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

func (u *User) FullName() string {
	return person.FullName(u.FirstName, u.LastName)
}

func (u *User) Initials() string {
	return person.Initials(u.FirstName, u.LastName)
}

func (u *User) Subject() activity.Subject {
	return activity.Subject{Kind: activity.KindUser, ID: u.ID}
}

type UserResponse struct {
	*User
	FullName    string   `json:"full_name"`
	Initials    string   `json:"initials"`
	Permissions []string `json:"permissions"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		User:        u,
		FullName:    u.FullName(),
		Initials:    u.Initials(),
		Permissions: auth.PermissionsFor(u.Role),
	}
}

// snapshot returns the logged attributes of a row.
func snapshot(u *userDatamodel.User) map[string]any {
	return map[string]any{
		"role":       u.Role,
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"email":      u.Email,
	}
}

func FromDataModel(u *userDatamodel.User) *User {
	out := &User{
		ID:          u.ID,
		Role:        auth.Role(u.Role),
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		CreatedByID: u.CreatedByID,
		UpdatedByID: u.UpdatedByID,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
	if u.DeletedAt.Valid {
		t := u.DeletedAt.Time
		out.DeletedAt = &t
	}
	return out
}

func ToDataModel(u *User, passwordHash string) *userDatamodel.User {
	row := &userDatamodel.User{
		ID:        u.ID,
		Role:      string(u.Role),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Password:  passwordHash,
		Stamps:    audit.Stamps{CreatedByID: u.CreatedByID, UpdatedByID: u.UpdatedByID},
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if u.DeletedAt != nil {
		row.DeletedAt = gorm.DeletedAt{Time: *u.DeletedAt, Valid: true}
	}
	return row
}
