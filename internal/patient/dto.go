package patient

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/frahmantamala/clinic-management/internal"
	"github.com/frahmantamala/clinic-management/internal/core/common/validation"
	ozzo "github.com/go-ozzo/ozzo-validation/v4"
)

const minPasswordLength = 8

type PatientDTO struct {
	FirstName            string  `json:"first_name"`
	MiddleName           *string `json:"middle_name"`
	LastName             string  `json:"last_name"`
	Email                string  `json:"email"`
	DateOfBirth          string  `json:"date_of_birth"`
	Password             string  `json:"password"`
	PasswordConfirmation string  `json:"password_confirmation"`
}

func (d *PatientDTO) normalize() {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.DateOfBirth = strings.TrimSpace(d.DateOfBirth)
	if d.MiddleName != nil {
		m := strings.TrimSpace(*d.MiddleName)
		if m == "" {
			d.MiddleName = nil
		} else {
			d.MiddleName = &m
		}
	}
}

// Validate checks the payload; today bounds date_of_birth from above.
func (d PatientDTO) Validate(creating bool, today time.Time) error {
	passwordRules := []ozzo.Rule{
		validation.MinLength("password", minPasswordLength),
		validation.Confirmed("password", d.PasswordConfirmation),
	}
	if creating {
		passwordRules = append([]ozzo.Rule{validation.Required("password")}, passwordRules...)
	}

	return validation.FromOzzo(ozzo.ValidateStruct(&d,
		ozzo.Field(&d.FirstName, validation.Required("first_name"), validation.MaxLength("first_name", 255)),
		ozzo.Field(&d.LastName, validation.Required("last_name"), validation.MaxLength("last_name", 255)),
		ozzo.Field(&d.MiddleName, validation.MaxLength("middle_name", 255)),
		ozzo.Field(&d.Email, validation.Required("email"), validation.Email("email"), validation.MaxLength("email", 255)),
		ozzo.Field(&d.DateOfBirth, validation.Required("date_of_birth"), validation.Date("date_of_birth"), beforeDay("date_of_birth", today)),
		ozzo.Field(&d.Password, passwordRules...),
	))
}

func beforeDay(field string, today time.Time) ozzo.Rule {
	limit := validation.DateOnly(today)
	return ozzo.By(func(value interface{}) error {
		s, _ := value.(string)
		t, err := validation.ParseDate(s)
		if err != nil {
			return nil
		}
		if !t.Before(limit) {
			return ozzo.NewError("validation_before_today", fmt.Sprintf("The %s field must be a date before today.", strings.ReplaceAll(field, "_", " ")))
		}
		return nil
	})
}

// ParseOffset validates the load-more offset: a required integer not below zero.
func ParseOffset(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, internal.NewValidationFieldError("offset", "The offset field is required.", internal.ErrCodeRequired)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, internal.NewValidationFieldError("offset", "The offset field must be an integer.", internal.ErrCodeInvalidFormat)
	}
	if n < 0 {
		return 0, internal.NewValidationFieldError("offset", "The offset field must be at least 0.", internal.ErrCodeInvalidFormat)
	}
	return n, nil
}
