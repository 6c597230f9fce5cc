package user

import (
	"strings"

	"github.com/frahmantamala/clinic-management/internal/auth"
	"github.com/frahmantamala/clinic-management/internal/core/common/validation"
	ozzo "github.com/go-ozzo/ozzo-validation/v4"
)

const minPasswordLength = 8

// UserDTO is the create/update payload. Password is optional on update.
type UserDTO struct {
	Role                 string `json:"role"`
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

func (d *UserDTO) normalize() {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
}

func (d UserDTO) Validate(creating bool) error {
	passwordRules := []ozzo.Rule{
		validation.MinLength("password", minPasswordLength),
		validation.Confirmed("password", d.PasswordConfirmation),
	}
	if creating {
		passwordRules = append([]ozzo.Rule{validation.Required("password")}, passwordRules...)
	}

	return validation.FromOzzo(ozzo.ValidateStruct(&d,
		ozzo.Field(&d.Role, validation.Required("role"), validation.In("role", auth.RoleStrings()...)),
		ozzo.Field(&d.FirstName, validation.Required("first_name"), validation.MaxLength("first_name", 255)),
		ozzo.Field(&d.LastName, validation.Required("last_name"), validation.MaxLength("last_name", 255)),
		ozzo.Field(&d.Email, validation.Required("email"), validation.Email("email"), validation.MaxLength("email", 255)),
		ozzo.Field(&d.Password, passwordRules...),
	))
}

type RoleOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type OptionsResponse struct {
	Roles []RoleOption `json:"roles"`
}
