// Package validation holds the field rules shared by HTTP handlers and the editor field forms.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Custom tags registered by Register.
const (
	TagNonBlank  = "nonblank"
	TagLink      = "link"
	TagClockTime = "clocktime"
	TagDate      = "calendardate"
)

// Message keys reported per field.
const (
	MsgRequired    = "required"
	MsgInvalidURL  = "invalid_url"
	MsgInvalidTime = "invalid_time"
	MsgInvalidDate = "invalid_date"
	MsgInvalid     = "invalid"
)

var (
	// Scheme optional; host must be dot-separated.
	linkRegex      = regexp.MustCompile(`^(https?://)?([A-Za-z0-9-]+\.)+[A-Za-z0-9-]{2,}(:\d{1,5})?(/\S*)?$`)
	clockTimeRegex = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// ErrBlank is returned by Trimmed for an empty or all-whitespace value.
var ErrBlank = errors.New("value is blank")

// Trimmed returns s without surrounding whitespace, or ErrBlank when nothing is left.
func Trimmed(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", ErrBlank
	}
	return t, nil
}

// OptionalTrimmed trims s and maps the empty result to nil.
func OptionalTrimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

// IsLink reports whether s looks like a URL.
func IsLink(s string) bool {
	return linkRegex.MatchString(strings.TrimSpace(s))
}

// IsClockTime reports whether s is an HH:MM time of day.
func IsClockTime(s string) bool {
	return clockTimeRegex.MatchString(s)
}

// IsDate reports whether s is a YYYY-MM-DD calendar date.
func IsDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// New returns a validator with the custom tags registered and json field names in errors.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := Register(v); err != nil {
		panic(fmt.Sprintf("register validations: %v", err))
	}
	return v
}

// Register adds the custom tags to v (used for gin's binding engine too).
func Register(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	if err := v.RegisterValidation(TagNonBlank, func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	}); err != nil {
		return err
	}
	if err := v.RegisterValidation(TagLink, func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || IsLink(s)
	}); err != nil {
		return err
	}
	if err := v.RegisterValidation(TagClockTime, func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || IsClockTime(s)
	}); err != nil {
		return err
	}
	return v.RegisterValidation(TagDate, func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || IsDate(s)
	})
}

var shared = sync.OnceValue(New)

// Struct checks s against its validate tags with the shared validator.
func Struct(s any) error {
	return Check(shared(), s)
}

// FieldErrors maps a field name to a message key. It is the per-field error state of a form.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Check validates s and returns nil or FieldErrors.
func Check(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fe := make(FieldErrors, len(verrs))
	for _, e := range verrs {
		fe[e.Field()] = messageFor(e.Tag())
	}
	return fe
}

func messageFor(tag string) string {
	switch tag {
	case "required", TagNonBlank:
		return MsgRequired
	case TagLink, "url":
		return MsgInvalidURL
	case TagClockTime:
		return MsgInvalidTime
	case TagDate, "datetime":
		return MsgInvalidDate
	}
	return MsgInvalid
}
