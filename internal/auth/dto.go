package auth

import (
	"github.com/frahmantamala/clinic-management/internal/core/common/validation"
	ozzo "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// LoginDTO is the transport shape used by the HTTP handler to accept login requests.
type LoginDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (d LoginDTO) Validate() error {
	return validation.FromOzzo(ozzo.ValidateStruct(&d,
		ozzo.Field(&d.Email, validation.Required("email"), is.EmailFormat.Error("The email field must be a valid email address.")),
		ozzo.Field(&d.Password, validation.Required("password")),
	))
}

type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token"`
}

func (d RefreshTokenDTO) Validate() error {
	return validation.FromOzzo(ozzo.ValidateStruct(&d,
		ozzo.Field(&d.RefreshToken, validation.Required("refresh_token")),
	))
}
