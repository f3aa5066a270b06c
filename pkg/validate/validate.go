// Package validate checks user input before it is sent anywhere and turns
// validator failures into short messages.
package validate

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var ErrInvalidInput = errors.New("invalid input")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Error lists every rejected field. errors.Is matches ErrInvalidInput.
type Error struct {
	Messages []string
}

func (e *Error) Error() string {
	return strings.Join(e.Messages, " ")
}

func (e *Error) Is(target error) bool {
	return target == ErrInvalidInput
}

// Struct validates v against its `validate` tags.
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Wrap(err, "validate")
	}
	out := &Error{}
	for _, fe := range fieldErrs {
		out.Messages = append(out.Messages, message(fe))
	}
	return out
}

func message(fe validator.FieldError) string {
	field := strings.ReplaceAll(strings.ToLower(fe.Field()), "_", " ")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters.", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be %s or more.", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid.", field)
}
