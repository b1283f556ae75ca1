package registration

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"

	"visitordesk/internal/visitor"
)

// Window of acceptable appointment times, inclusive.
const (
	OpeningTime = "08:00"
	ClosingTime = "17:00"
)

var (
	contactPattern = regexp.MustCompile(`^\+639\d{9}$`)
	emailPattern   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	clockPattern   = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// Identity is the first wizard step.
type Identity struct {
	Name          string `json:"name" validate:"required,max=120"`
	ContactNumber string `json:"contactNumber" validate:"required,phmobile"`
	Email         string `json:"email" validate:"required,basicemail"`
}

// Appointment is the second wizard step. Calendar rules are checked
// separately against the holiday calendar.
type Appointment struct {
	Office        visitor.Office `json:"office" validate:"required,office"`
	Purpose       string         `json:"purpose" validate:"required,max=500"`
	ScheduledDate string         `json:"scheduledDate" validate:"required,datetime=2006-01-02"`
	ScheduledTime string         `json:"scheduledTime" validate:"required,visittime"`
}

// ValidationError maps json field names to user-facing messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

func fieldError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("phmobile", func(fl validator.FieldLevel) bool {
		return contactPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("basicemail", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("office", func(fl validator.FieldLevel) bool {
		return visitor.Office(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("visittime", func(fl validator.FieldLevel) bool {
		return ValidTime(fl.Field().String())
	})
	return v
}

// ValidTime reports whether t is an HH:MM time inside the visiting window.
func ValidTime(t string) bool {
	return clockPattern.MatchString(t) && t >= OpeningTime && t <= ClosingTime
}

// ValidateIdentity checks the identity step.
func ValidateIdentity(id Identity) error {
	id.Name = strings.TrimSpace(id.Name)
	return structError(validate.Struct(id), map[string]string{"contactNumber": id.ContactNumber})
}

// ValidateAppointment checks the appointment step's field formats.
func ValidateAppointment(a Appointment) error {
	a.Purpose = strings.TrimSpace(a.Purpose)
	return structError(validate.Struct(a), nil)
}

func structError(err error, values map[string]string) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = message(fe, values)
	}
	return out
}

func message(fe validator.FieldError, values map[string]string) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s is too long", field)
	case "phmobile":
		msg := "contact number must look like +639XXXXXXXXX"
		if hint := ContactHint(values[field]); hint != "" {
			msg += "; did you mean " + hint
		}
		return msg
	case "basicemail":
		return "email address is not valid"
	case "office":
		return "office must be one of Registrar, Guidance, Cashier, Dean, Library"
	case "datetime":
		return "scheduled date must be YYYY-MM-DD"
	case "visittime":
		return fmt.Sprintf("time must be between %s and %s", OpeningTime, ClosingTime)
	}
	return fmt.Sprintf("%s is invalid", field)
}

// ContactHint returns the E.164 form of a Philippine mobile number written
// some other way, or "" when raw is not one.
func ContactHint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	num, err := libphonenumber.Parse(raw, "PH")
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return ""
	}
	if libphonenumber.GetNumberType(num) != libphonenumber.MOBILE {
		return ""
	}
	e164 := libphonenumber.Format(num, libphonenumber.E164)
	if e164 == raw || !contactPattern.MatchString(e164) {
		return ""
	}
	return e164
}
