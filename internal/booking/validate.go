package booking

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/hyrox-registration/internal/model"
)

var (
	phoneRegex      = regexp.MustCompile(`^[0-9+() \-]{7,20}$`)
	requestKeyRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

type personInput struct {
	FullName string `json:"full_name" validate:"required,max=80"`
	Phone    string `json:"phone" validate:"required,phone"`
	Email    string `json:"email" validate:"required,max=120,looseemail"`
}

type keyInput struct {
	Key string `json:"idempotency_key" validate:"omitempty,min=8,max=64,requestkey"`
}

// fieldError is the first rule a request broke.
type fieldError struct {
	Field  string
	Reason string
}

// rules checks registrant data with go-playground/validator and turns
// the first failure into a field name and a readable reason.
type rules struct {
	validate *validator.Validate
}

func newRules() (*rules, error) {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	for tag, fn := range map[string]validator.Func{
		"phone":      validatePhone,
		"looseemail": validateLooseEmail,
		"requestkey": validateRequestKey,
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return nil, fmt.Errorf("register %q validator: %w", tag, err)
		}
	}
	return &rules{validate: v}, nil
}

func validatePhone(fl validator.FieldLevel) bool {
	return phoneRegex.MatchString(fl.Field().String())
}

// validateLooseEmail only asks for an @ and a dot, the same bar the
// registration form sets.
func validateLooseEmail(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return strings.Contains(s, "@") && strings.Contains(s, ".")
}

func validateRequestKey(fl validator.FieldLevel) bool {
	return requestKeyRegex.MatchString(fl.Field().String())
}

// person validates p; scope prefixes the reported field name, e.g.
// "partner" yields "partner.phone".
func (v *rules) person(p model.Person, scope string) *fieldError {
	return v.check(personInput{FullName: p.FullName, Phone: p.Phone, Email: p.Email}, scope)
}

// requestKey validates an optional idempotency key.
func (v *rules) requestKey(key string) *fieldError {
	return v.check(keyInput{Key: key}, "")
}

func (v *rules) check(s any, scope string) *fieldError {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &fieldError{Field: scoped(scope, "request"), Reason: err.Error()}
	}
	fe := verrs[0]
	return &fieldError{Field: scoped(scope, fe.Field()), Reason: reason(fe)}
}

func scoped(scope, field string) string {
	if scope == "" {
		return field
	}
	return scope + "." + field
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "phone":
		return "must be 7 to 20 characters of digits, spaces, +, parentheses or hyphens"
	case "looseemail":
		return "must contain @ and ."
	case "requestkey":
		return "may only contain letters, digits, hyphens and underscores"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
