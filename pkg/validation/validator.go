package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// Member IDs appear in metric labels and log fields
	memberIDPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,31}$`)
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	// registered once at init; the tag name is a compile-time constant
	_ = validate.RegisterValidation("memberid", func(fl validator.FieldLevel) bool {
		return memberIDPattern.MatchString(fl.Field().String())
	})
}

// ValidMemberID reports whether id is usable as a replica-set member ID.
func ValidMemberID(id string) bool {
	return memberIDPattern.MatchString(id)
}

// ValidateStruct validates s against its `validate` struct tags and
// reports every failing field.
func ValidateStruct(s any) error {
	if s == nil {
		return errors.New("config cannot be nil")
	}
	if err := validate.Struct(s); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	msgs := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		field := e.Namespace()
		param := e.Param()

		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s: field is required", field))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s: must be at least %s", field, param))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s: must not exceed %s", field, param))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s: must be one of [%s]", field, param))
		case "unique":
			msgs = append(msgs, fmt.Sprintf("%s: entries must be unique", field))
		case "memberid":
			msgs = append(msgs, fmt.Sprintf("%s: %q is not a valid member id", field, e.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: validation failed (%s)", field, e.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
