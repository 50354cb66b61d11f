// Package validation wraps go-playground/validator with the storefront's
// custom tags and turns failures into per-field messages.
package validation

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	profileEmail  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	shippingEmail = regexp.MustCompile(`\S+@\S+\.\S+`)
	phoneNumber   = regexp.MustCompile(`^\+?[\d\s()-]{10,}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	mustRegister(v, "profile_email", profileEmail)
	mustRegister(v, "shipping_email", shippingEmail)
	mustRegister(v, "phone", phoneNumber)
	if err := v.RegisterValidation("trimmed_required", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	}); err != nil {
		panic(err)
	}
	return v
}

func mustRegister(v *validator.Validate, tag string, re *regexp.Regexp) {
	if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
}

// Messages maps a json field name to the message shown for each failing tag.
type Messages map[string]map[string]string

// Struct validates v and returns one message per failing field, or nil
// when v is valid. Fields without a configured message get "is invalid".
func Struct(v any, messages Messages) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"form": err.Error()}
	}
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		if _, seen := out[fe.Field()]; seen {
			continue
		}
		out[fe.Field()] = message(fe, messages)
	}
	return out
}

func message(fe validator.FieldError, messages Messages) string {
	if byTag, ok := messages[fe.Field()]; ok {
		if msg, ok := byTag[fe.Tag()]; ok {
			return msg
		}
		if msg, ok := byTag["*"]; ok {
			return msg
		}
	}
	return fe.Field() + " is invalid"
}
