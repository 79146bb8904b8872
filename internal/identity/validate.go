// ABOUTME: Input validation for registration, login and profile changes
// ABOUTME: Maps validator failures onto the service's validation errors

package identity

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared by every Service; validator caches struct metadata.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their wire names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type clientInput struct {
	Name  string `json:"client_name" validate:"required"`
	Email string `json:"client_email" validate:"required,email"`
}

type accountInput struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type passwordInput struct {
	Current string `json:"current_password" validate:"required"`
	Next    string `json:"new_password" validate:"required"`
}

// checkStruct validates in and reports its first failing field.
func checkStruct(in interface{}) error {
	return fieldError(validate.Struct(in), "")
}

// checkVar validates a single value under the given wire name.
func checkVar(value, tag, field string) error {
	return fieldError(validate.Var(value, tag), field)
}

func fieldError(err error, field string) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validating input: %w", err)
	}

	fe := verrs[0]
	if fe.Field() != "" {
		field = fe.Field()
	}
	if fe.Tag() == "email" {
		return fmt.Errorf("%w: %s", ErrInvalidEmail, field)
	}
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
