package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "github.com/frahmantamala/clinic-management/internal"
	ozzo "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Bag accumulates field errors in the order they are added.
type Bag struct {
	errs []apperrors.ValidationError
}

func NewBag() *Bag {
	return &Bag{errs: make([]apperrors.ValidationError, 0)}
}

func (b *Bag) Add(field, message string, code apperrors.ErrorCode) {
	b.errs = append(b.errs, apperrors.ValidationError{Field: field, Message: message, Code: string(code)})
}

// Merge folds ozzo-validation errors (or an existing validation AppError) into the bag.
// Any other error is returned unchanged so callers can treat it as internal.
func (b *Bag) Merge(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs ozzo.Errors
	if errors.As(err, &fieldErrs) {
		b.errs = append(b.errs, flatten("", fieldErrs)...)
		return nil
	}
	if appErr, ok := apperrors.IsAppError(err); ok && appErr.Type == apperrors.ErrorTypeValidation {
		if details, ok := appErr.Details.(apperrors.ValidationErrors); ok {
			b.errs = append(b.errs, details.Errors...)
			return nil
		}
		b.Add("", appErr.Message, appErr.Code)
		return nil
	}
	var internalErr ozzo.InternalError
	if errors.As(err, &internalErr) {
		return internalErr.InternalError()
	}
	return err
}

func (b *Bag) Has(field string) bool {
	for _, e := range b.errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func (b *Bag) Empty() bool {
	return len(b.errs) == 0
}

// Err returns nil when the bag is empty.
func (b *Bag) Err() error {
	if b.Empty() {
		return nil
	}
	return apperrors.NewFieldErrors(b.errs)
}

func flatten(prefix string, errs ozzo.Errors) []apperrors.ValidationError {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]apperrors.ValidationError, 0, len(errs))
	for _, k := range keys {
		field := k
		if prefix != "" {
			field = prefix + "." + k
		}
		var nested ozzo.Errors
		if errors.As(errs[k], &nested) {
			out = append(out, flatten(field, nested)...)
			continue
		}
		code := string(apperrors.ErrCodeValidationFailed)
		var objErr ozzo.Error
		if errors.As(errs[k], &objErr) {
			code = strings.ToUpper(strings.TrimPrefix(objErr.Code(), "validation_"))
		}
		out = append(out, apperrors.ValidationError{Field: field, Message: errs[k].Error(), Code: code})
	}
	return out
}

// FromOzzo converts an ozzo-validation result into a 422 AppError.
func FromOzzo(err error) error {
	bag := NewBag()
	if mergeErr := bag.Merge(err); mergeErr != nil {
		return mergeErr
	}
	return bag.Err()
}

func label(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}

// Required mirrors the "The x field is required." wording used across forms.
func Required(field string) ozzo.Rule {
	return ozzo.Required.Error(fmt.Sprintf("The %s field is required.", label(field)))
}

func MaxLength(field string, max int) ozzo.Rule {
	return ozzo.RuneLength(0, max).Error(fmt.Sprintf("The %s field must not be greater than %d characters.", label(field), max))
}

func MinLength(field string, min int) ozzo.Rule {
	return ozzo.RuneLength(min, 0).Error(fmt.Sprintf("The %s field must be at least %d characters.", label(field), min))
}

func Email(field string) ozzo.Rule {
	return is.EmailFormat.Error(fmt.Sprintf("The %s field must be a valid email address.", label(field)))
}

// In restricts a string to one of values.
func In(field string, values ...string) ozzo.Rule {
	allowed := make([]interface{}, 0, len(values))
	for _, v := range values {
		allowed = append(allowed, v)
	}
	return ozzo.In(allowed...).Error(fmt.Sprintf("The selected %s is invalid.", label(field)))
}

// Confirmed checks value against its "_confirmation" companion.
func Confirmed(field, confirmation string) ozzo.Rule {
	return ozzo.By(func(value interface{}) error {
		s, _ := value.(string)
		if s == "" || s == confirmation {
			return nil
		}
		return ozzo.NewError("validation_confirmed", fmt.Sprintf("The %s field confirmation does not match.", label(field)))
	})
}

// Date accepts empty strings; combine with Required when needed.
func Date(field string) ozzo.Rule {
	return ozzo.By(func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		if _, err := time.Parse(DateLayout, s); err != nil {
			return ozzo.NewError("validation_invalid_date", fmt.Sprintf("The %s field must be a valid date.", label(field)))
		}
		return nil
	})
}

// Clock validates a 24h HH:MM value.
func Clock(field string) ozzo.Rule {
	return ozzo.By(func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		if _, err := ParseClock(s); err != nil {
			return ozzo.NewError("validation_invalid_time", fmt.Sprintf("The %s field must match the format H:i.", label(field)))
		}
		return nil
	})
}

// ParseDate parses YYYY-MM-DD into a UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ParseClock normalises "9:05" or "09:05" into "09:05".
func ParseClock(s string) (string, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		if t, err = time.Parse("15:04:05", s); err != nil {
			return "", err
		}
	}
	return t.Format(ClockLayout), nil
}

// DateOnly truncates t to its UTC calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
