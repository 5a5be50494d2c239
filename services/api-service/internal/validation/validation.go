// Package validation maps request structs to field-level error messages.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/go-playground/validator/v10"
)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterValidation("signup_role", func(fl validator.FieldLevel) bool {
		r := model.Role(fl.Field().String())
		return r == model.RoleFarmer || r == model.RoleAgronomist
	})
	v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return model.Role(fl.Field().String()).Valid()
	})
	v.RegisterValidation("tier", func(fl validator.FieldLevel) bool {
		return model.Tier(fl.Field().String()).Valid()
	})
	v.RegisterValidation("timezone", func(fl validator.FieldLevel) bool {
		_, err := time.LoadLocation(fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(model.DateLayout, fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.RegisterValidation("singleline", func(fl validator.FieldLevel) bool {
		return strings.IndexFunc(fl.Field().String(), unicode.IsControl) < 0
	})
	return &Validator{validate: v}
}

// Struct validates s and returns nil or a map of field name to message.
func (v *Validator) Struct(s any) map[string]string {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fieldPath(fe)] = message(fe)
	}
	return out
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "singleline":
		return "must not contain line breaks or control characters"
	case "signup_role":
		return "must be farmer or agronomist"
	case "role":
		return "must be farmer, agronomist or admin"
	case "tier":
		return "must be free, basic or premium"
	case "timezone":
		return "must be an IANA time zone"
	case "date":
		return "must be a date formatted YYYY-MM-DD"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "gtfield":
		return "must be greater than " + fe.Param()
	case "url":
		return "must be a valid URL"
	}
	return "is invalid"
}
